package configuration

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v2"
)

// overwriteFields walks the configuration struct and replaces scalar fields
// with the value of the matching environment variable, if set. Variable names
// are the upper cased yaml path joined by underscores, e.g.
// REGISTRY_REDIS_TLS_ENABLED. Values are decoded as yaml so custom
// unmarshalers and durations apply.
func overwriteFields(config *Configuration, prefix string) error {
	return overwriteStruct(reflect.ValueOf(config).Elem(), prefix)
}

func overwriteStruct(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}

		name := strings.Split(sf.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		key := prefix + "_" + strings.ToUpper(name)
		field := v.Field(i)

		switch field.Kind() {
		case reflect.Struct:
			if err := overwriteStruct(field, key); err != nil {
				return err
			}
			continue
		case reflect.Map, reflect.Slice:
			// collections are only configurable through yaml
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}

		target := reflect.New(field.Type())
		if err := yaml.Unmarshal([]byte(value), target.Interface()); err != nil {
			if _, isTypeErr := err.(*yaml.TypeError); isTypeErr {
				return fmt.Errorf("parsing environment variable %s: %w", key, err)
			}
			return err
		}
		field.Set(target.Elem())
	}

	return nil
}
