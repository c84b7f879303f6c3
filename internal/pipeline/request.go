package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Quality trades generation time and cost against fidelity.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityHigh     Quality = "high"
)

// Qualities lists the accepted tiers, fastest first.
var Qualities = []Quality{QualityFast, QualityBalanced, QualityHigh}

type PostProcessOptions struct {
	Enabled       bool   `json:"enabled"`
	TexturePrompt string `json:"texturePrompt,omitempty" validate:"max=600"`
}

// GenerationRequest is the user input for one asset. It is immutable once a
// pipeline has been created from it.
type GenerationRequest struct {
	Description string              `json:"description" validate:"notblank,max=2000"`
	Name        string              `json:"name" validate:"notblank,max=120"`
	Type        string              `json:"type,omitempty" validate:"max=64"`
	Subtype     string              `json:"subtype,omitempty" validate:"max=64"`
	AssetID     string              `json:"assetId,omitempty" validate:"omitempty,max=128,assetid"`
	Quality     Quality             `json:"quality,omitempty" validate:"omitempty,oneof=fast balanced high"`
	Style       string              `json:"style,omitempty" validate:"max=64"`
	PostProcess *PostProcessOptions `json:"postProcess,omitempty"`

	// set from the identity lookup, never from the request body
	UserID string `json:"-"`
}

var (
	validate      = newValidator()
	assetIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	slugStrip     = regexp.MustCompile(`[^a-z0-9]+`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("assetid", func(fl validator.FieldLevel) bool {
		return assetIDRegexp.MatchString(fl.Field().String())
	})
	return v
}

// Normalize trims fields, applies the default quality and derives an asset
// id from the name when none was given.
func (r GenerationRequest) Normalize() GenerationRequest {
	r.Description = strings.TrimSpace(r.Description)
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
	r.Subtype = strings.TrimSpace(r.Subtype)
	r.Style = strings.TrimSpace(r.Style)
	r.AssetID = strings.TrimSpace(r.AssetID)
	if r.Quality == "" {
		r.Quality = QualityBalanced
	}
	if r.AssetID == "" {
		r.AssetID = Slug(r.Name)
	}
	if r.AssetID == "" {
		r.AssetID = "asset"
	}
	if r.PostProcess != nil {
		pp := *r.PostProcess
		pp.TexturePrompt = strings.TrimSpace(pp.TexturePrompt)
		r.PostProcess = &pp
	}
	return r
}

// Validate checks a normalized request. All failures wrap ErrValidation.
func (r GenerationRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, "; "))
}

// WantsPostProcessing is the precondition of the optional post-processing stage.
func (r GenerationRequest) WantsPostProcessing() bool {
	return r.PostProcess != nil && r.PostProcess.Enabled
}

func (r GenerationRequest) clone() GenerationRequest {
	if r.PostProcess != nil {
		pp := *r.PostProcess
		r.PostProcess = &pp
	}
	return r
}

// Slug turns a display name into an asset identifier.
func Slug(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 96 {
		s = strings.TrimRight(s[:96], "-")
	}
	return s
}

// drops the leading struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
