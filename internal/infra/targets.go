package infra

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xela07ax/sloguard/internal/domain"
	"gopkg.in/yaml.v3"
)

type targetsFile struct {
	Targets []domain.Target `yaml:"targets"`
}

// LoadTargetsFile читает каталог SLO. Неизвестные поля — ошибка: опечатка в пороге не должна молча стать нулем.
func LoadTargetsFile(path string) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targets file: %w", err)
	}
	defer f.Close()

	targets, err := DecodeTargets(f)
	if err != nil {
		return nil, fmt.Errorf("targets file %s: %w", path, err)
	}
	return targets, nil
}

func DecodeTargets(r io.Reader) ([]domain.Target, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var tf targetsFile
	if err := dec.Decode(&tf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &domain.ConfigurationError{Field: "targets", Reason: err.Error()}
	}
	return tf.Targets, nil
}
