package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// report JSON names, not Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return exam.QuestionType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		if fl.Field().String() == "" {
			return true
		}
		_, err := exam.ParseResultVisibility(fl.Field().String())
		return err == nil
	})
}

// check validates a decoded request body and converts failures into the
// domain's ValidationError so every 422 has the same shape.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make([]exam.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, exam.FieldError{Field: fieldPath(fe), Message: fe.Translate(translator)})
	}
	return &exam.ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name: "submitReq.answers[q1]" -> "answers[q1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
