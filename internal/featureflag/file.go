package featureflag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileClient serves flags from a YAML document of the form:
//
//	flags:
//	  - name: platform.commit-states-asap
//	    serve: false
//	    context:
//	      - type: connection
//	        include: [8a7c...]
//	        serve: true
type FileClient struct {
	flags map[string]fileFlag
}

type fileFlags struct {
	Flags []fileFlag `yaml:"flags"`
}

type fileFlag struct {
	Name    string        `yaml:"name"`
	Serve   bool          `yaml:"serve"`
	Context []fileContext `yaml:"context"`
}

type fileContext struct {
	Type    string   `yaml:"type"`
	Include []string `yaml:"include"`
	Serve   bool     `yaml:"serve"`
}

// NewFileClient reads the flag file at path.
func NewFileClient(path string) (*FileClient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flag file: %w", err)
	}
	defer f.Close()
	return ParseFileClient(f)
}

func ParseFileClient(r io.Reader) (*FileClient, error) {
	var doc fileFlags
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode flag file: %w", err)
	}
	flags := make(map[string]fileFlag, len(doc.Flags))
	for _, flag := range doc.Flags {
		if flag.Name == "" {
			return nil, errors.New("decode flag file: flag without name")
		}
		flags[flag.Name] = flag
	}
	return &FileClient{flags: flags}, nil
}

func (c *FileClient) BoolVariation(_ context.Context, flag Flag, fctx Context) bool {
	f, ok := c.flags[flag.Key]
	if !ok {
		return flag.Default
	}
	for _, override := range f.Context {
		if override.Type != fctx.Kind {
			continue
		}
		for _, key := range override.Include {
			if key == fctx.Key {
				return override.Serve
			}
		}
	}
	return f.Serve
}
