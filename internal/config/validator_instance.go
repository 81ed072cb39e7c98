package config

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	sourceIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	sshGitPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)
)

// validatorInstance lazily builds the shared validator.Validate instance
// carrying the manifest's custom tags.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("source_id", func(fl validator.FieldLevel) bool {
			return sourceIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("git_url", func(fl validator.FieldLevel) bool {
			raw := fl.Field().String()
			if raw == "" {
				return true
			}
			if strings.TrimSpace(raw) == "" {
				return false
			}
			if parsed, err := url.Parse(raw); err == nil {
				scheme := strings.ToLower(parsed.Scheme)
				if (scheme == "http" || scheme == "https") && parsed.Host != "" {
					return true
				}
			}
			return sshGitPattern.MatchString(raw)
		})

		validateInst = v
	})
	return validateInst
}
