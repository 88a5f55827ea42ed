package httpgin

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	promoCodeRe      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
	registerRulesOne sync.Once
)

// promoCode accepts blank text (it clears the code) or a short
// alphanumeric code.
func promoCode(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	return s == "" || promoCodeRe.MatchString(s)
}

// registerValidators installs the custom binding rules on gin's validator.
// It panics if a rule cannot be registered.
func registerValidators() {
	registerRulesOne.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic(fmt.Sprintf("httpgin: unexpected validator engine %T", binding.Validator.Engine()))
		}

		if err := v.RegisterValidation("promocode", promoCode); err != nil {
			panic(fmt.Sprintf("httpgin: register promocode rule: %v", err))
		}
	})
}
