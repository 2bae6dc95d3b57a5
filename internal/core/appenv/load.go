package appenv

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// FileName returns the settings file name for a profile, e.g. ".env.dev".
func FileName(profileName string) string {
	return ".env." + profileName
}

// Parse reads dotenv content.
func Parse(file string, content []byte) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return FromMap(file, flatten(v))
}

// Load reads <dir>/<envFile>. When envFile is empty the profile's default
// name is used. A missing file yields an error wrapping ErrEnvFileNotFound.
func Load(dir, envFile, profileName string) (*Settings, error) {
	if envFile == "" {
		envFile = FileName(profileName)
	}
	path := envFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, envFile)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrEnvFileNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(path, content)
}

// flatten returns viper's keys as plain strings. viper lower-cases keys;
// FromMap upper-cases them again.
func flatten(v *viper.Viper) map[string]string {
	out := make(map[string]string)
	for _, k := range v.AllKeys() {
		out[k] = v.GetString(k)
	}
	return out
}
