package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

type Configuration struct {
	// Workers is the number of parallel tasks, 0 means one per CPU.
	Workers          int      `json:"workers" validate:"gte=0"`
	BatchLines       int      `json:"batchLines" validate:"gte=1"`
	IndexExtension   string   `json:"indexExtension" validate:"required,startswith=."`
	LogDir           string   `json:"logDir"`
	OutputDir        string   `json:"outputDir" validate:"required"`
	ProgressInterval Duration `json:"progressInterval"`
}

// Defaults returns the configuration used when no config file is given.
func Defaults() Configuration {
	return Configuration{
		Workers:          0,
		BatchLines:       500,
		IndexExtension:   ".partition",
		OutputDir:        ".",
		ProgressInterval: Duration{10 * time.Second},
	}
}

// GetConfig decodes the config file f over defaults and validates the
// result. An empty f returns the validated defaults.
func GetConfig(defaults Configuration, f string) (*Configuration, error) {
	if f != "" {
		b, err := os.ReadFile(f) // nolint: gosec
		if err != nil {
			return nil, err
		}
		reader := bytes.NewReader(b)

		decoder := json.NewDecoder(reader)
		decoder.DisallowUnknownFields()
		if err = decoder.Decode(&defaults); err != nil {
			return nil, fmt.Errorf("could not decode config file %s: %w", f, err)
		}
	}

	if err := Validate(defaults); err != nil {
		return nil, err
	}

	return &defaults, nil
}

// Validate checks c and reports every violation.
func Validate(c Configuration) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(c)
	if err == nil {
		if c.ProgressInterval.Duration < 0 {
			return fmt.Errorf("invalid progressInterval %s", c.ProgressInterval)
		}
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("could not validate config: %w", err)
	}
	var result *multierror.Error
	for _, e := range validationErrors {
		result = multierror.Append(result, fmt.Errorf("invalid value %v for %s: failed %q %s", e.Value(), e.Field(), e.Tag(), e.Param()))
	}
	if c.ProgressInterval.Duration < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid progressInterval %s", c.ProgressInterval))
	}
	return result.ErrorOrNil()
}
