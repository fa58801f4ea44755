package main

import (
	"github.com/mavenhub/registry/registry"
	_ "github.com/mavenhub/registry/registry/storage/driver/filesystem"
	_ "github.com/mavenhub/registry/registry/storage/driver/inmemory"
	_ "github.com/mavenhub/registry/registry/storage/driver/s3-aws"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := registry.RootCmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}
