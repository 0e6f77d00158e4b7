package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/id"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	id_translations "github.com/go-playground/validator/v10/translations/id"
	"golang.org/x/text/language"
)

// idRule is applied to identifiers taken from the URL.
const idRule = "required,max=64,printascii,excludesall=/?#%"

var (
	uni      *ut.UniversalTranslator
	validate *govalidator.Validate
)

// Setup registers the validator with English and Indonesian translations on
// Gin's binding engine. Call once during application startup.
func Setup() {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return
	}

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni = ut.New(enLocale, enLocale, id.New())

	enTrans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, enTrans)
	idTrans, _ := uni.GetTranslator("id")
	_ = id_translations.RegisterDefaultTranslations(v, idTrans)

	validate = v
}

// translatorFor picks the translator for an Accept-Language header value.
func translatorFor(acceptLanguage string) ut.Translator {
	if uni == nil {
		return nil
	}
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	prefs := make([]string, 0, len(tags))
	for _, t := range tags {
		base, _ := t.Base()
		prefs = append(prefs, base.String())
	}
	trans, _ := uni.FindTranslator(prefs...)
	return trans
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message in the requested language. If
// the error is not a validation error, it returns a single-key map with
// "detail".
func TranslateErrors(err error, acceptLanguage string) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		trans := translatorFor(acceptLanguage)
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err, c.GetHeader("Accept-Language"))
	}
	return nil
}

// ValidID reports whether a path identifier is acceptable.
func ValidID(s string) bool {
	if validate == nil {
		return s != "" && len(s) <= 64 && !strings.ContainsAny(s, "/?#%")
	}
	return validate.Var(s, idRule) == nil
}
