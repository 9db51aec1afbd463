package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/docset/internal/chunker"
	"github.com/dgallion1/docset/internal/storage"
)

// ErrInvalidOptions wraps every option rejection from Start.
var ErrInvalidOptions = errors.New("invalid options")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options control how a single run splits text and how many questions it asks
// for.
type Options struct {
	ChunkSize      int    `json:"chunk_size" validate:"min=100,max=5000"`
	ChunkOverlap   int    `json:"chunk_overlap" validate:"min=0,max=1000,ltfield=ChunkSize"`
	SplitStrategy  string `json:"split_strategy" validate:"oneof=recursive sentence header_aware"`
	TotalQuestions int    `json:"total_questions" validate:"min=1,max=50"`
	ForceReingest  bool   `json:"force_reingest"`
}

// DefaultOptions returns the options used when a request omits them.
// Decoding JSON on top of the defaults keeps omitted fields at their default.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      1200,
		ChunkOverlap:   200,
		SplitStrategy:  string(chunker.HeaderAware),
		TotalQuestions: 10,
	}
}

// Validate reports every out-of-range field at once.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := jsonName(fe.Field())
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", name, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be <= %s, got %v", name, fe.Param(), fe.Value())
	case "ltfield":
		return fmt.Sprintf("%s must be smaller than %s, got %v", name, jsonName(fe.Param()), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

func jsonName(field string) string {
	switch field {
	case "ChunkSize":
		return "chunk_size"
	case "ChunkOverlap":
		return "chunk_overlap"
	case "SplitStrategy":
		return "split_strategy"
	case "TotalQuestions":
		return "total_questions"
	}
	return field
}

func (o Options) settings() storage.SplitSettings {
	return storage.SplitSettings{
		ChunkSize:      o.ChunkSize,
		ChunkOverlap:   o.ChunkOverlap,
		SplitStrategy:  o.SplitStrategy,
		TotalQuestions: o.TotalQuestions,
	}
}
