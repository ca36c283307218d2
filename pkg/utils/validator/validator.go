// Package validator registers the custom request validation rules of the docqa
// API on gin's validator and formats validation errors for clients.
package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

// Custom validation tags
const (
	TagNotBlank = "notblank" // string contains at least one non-whitespace character
	TagULID     = "ulid"     // 26-character ULID identifier
)

var registerOnce sync.Once

// messages holds the client facing text per rule. {0} is the field, {1} the rule parameter.
var messages = map[string]string{
	"required":  "{0} is required",
	TagNotBlank: "{0} must not be blank",
	TagULID:     "{0} must be a valid document id",
	"min":       "{0} must be at least {1}",
	"max":       "{0} must be at most {1}",
}

var translator = newTranslator()

func newTranslator() ut.Translator {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator(locale.Locale())
	for tag, text := range messages {
		if err := trans.Add(tag, text, true); err != nil {
			panic(fmt.Sprintf("validator: bad message for %s: %v", tag, err))
		}
	}
	return trans
}

// Register installs the custom rules on gin's default validator and makes
// error field names follow the json tag. Safe to call more than once.
func Register() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}
		err = RegisterOn(v)
	})
	return err
}

// RegisterOn installs the custom rules on v.
func RegisterOn(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation(TagNotBlank, validateNotBlank); err != nil {
		return err
	}
	return v.RegisterValidation(TagULID, validateULID)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}

func validateULID(fl validator.FieldLevel) bool {
	_, err := ulid.ParseStrict(fl.Field().String())
	return err == nil
}

// Message formats err as a single client facing sentence.
// Errors that are not validation errors are returned as is.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	if _, ok := messages[fe.Tag()]; ok {
		if msg, err := translator.T(fe.Tag(), fe.Field(), fe.Param()); err == nil {
			return msg
		}
	}
	return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
}
