package main

import (
	"os"

	routeclassifier "github.com/offline-shell/offline-shell/pkg/route-classifier"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin      string                 `yaml:"origin"`
	Host        string                 `yaml:"host"`
	Version     string                 `yaml:"version"`
	Precache    []string               `yaml:"precache"`
	OfflinePath string                 `yaml:"offlinePath"`
	LandingPath string                 `yaml:"landingPath"`
	Routes      *routeclassifier.Table `yaml:"routes"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
