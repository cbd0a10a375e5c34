package knowledge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// SeedFile is the YAML root for knowledge base seeds.
type SeedFile struct {
	Solutions []models.SolutionTemplate `yaml:"solutions"`
}

// LoadCatalog seeds a catalog from path, falling back to DefaultSolutions when path is empty or missing.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NewCatalog(logger, nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("knowledge base seed not found, using defaults", slog.String("path", path))
			return NewCatalog(logger, nil), nil
		}
		return nil, &utils.AppError{Op: "load knowledge base", Msg: path, Err: err}
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, &utils.AppError{Op: "load knowledge base", Msg: path, Err: err}
	}
	for i, s := range seed.Solutions {
		if s.ID == "" {
			return nil, utils.NewValidationError(fmt.Sprintf("solutions[%d].id", i))
		}
	}
	if seed.Solutions == nil {
		seed.Solutions = []models.SolutionTemplate{}
	}
	return NewCatalog(logger, seed.Solutions), nil
}
