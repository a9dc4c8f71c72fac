package flow

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader reads the YAML configuration files of the flow engine from a base
// directory.
type Loader struct {
	baseDir string
}

func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

func (l *Loader) read(subPath string, target any) error {
	path := subPath
	if l.baseDir != "" && !filepath.IsAbs(subPath) {
		path = filepath.Join(l.baseDir, subPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return errors.Wrapf(err, "unmarshal %s", path)
	}
	return nil
}

// LoadDomain reads and validates a domain file.
func (l *Loader) LoadDomain(subPath string) (*Domain, error) {
	var d Domain
	if err := l.read(subPath, &d); err != nil {
		return nil, err
	}
	if err := d.build(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadConfig reads a flow configuration file.
func (l *Loader) LoadConfig(subPath string) (*Config, error) {
	var cfg Config
	if err := l.read(subPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFlowMap reads domain and flow config files and compiles them.
func (l *Loader) LoadFlowMap(domainPath, configPath string) (*FlowMap, error) {
	d, err := l.LoadDomain(domainPath)
	if err != nil {
		return nil, err
	}
	cfg, err := l.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewFlowMap(cfg, d)
}
