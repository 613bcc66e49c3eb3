package binder

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/skretail/console/pkg/errcodes"
)

// filesField is the struct field multipart uploads are bound into. It must be
// a map[string]*multipart.FileHeader.
const filesField = "FormFiles"

var (
	unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)
	fileHeaderType  = reflect.TypeOf(map[string]*multipart.FileHeader{})
)

// Binder implements echo.Binder. Payloads are decoded, cleaned up with mold
// modifiers, given their defaults and then validated.
type Binder struct {
	queryDecoder *schema.Decoder
	formDecoder  *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	formDecoder := schema.NewDecoder()
	formDecoder.SetAliasTag("form")

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation(urlTag, urlValidator); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := validate.RegisterValidation(scancode, scanCodeValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{
		queryDecoder: queryDecoder,
		formDecoder:  formDecoder,
		conform:      modifiers.New(),
		validate:     validate,
	}, nil
}

// Bind reads a JSON body, a form (with uploaded files) or, for bodiless
// requests, the query string into i.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	var err error
	switch ctype := req.Header.Get(echo.HeaderContentType); {
	case req.ContentLength == 0 && (req.Method == http.MethodGet || req.Method == http.MethodDelete):
		err = b.decodeValues(i, c.QueryParams(), b.queryDecoder)
	case req.ContentLength == 0:
		return errcodes.EmptyRequestBody()
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		err = b.bindJSON(i, c)
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		err = b.bindForm(i, c, false)
	case strings.HasPrefix(ctype, echo.MIMEMultipartForm):
		err = b.bindForm(i, c, true)
	default:
		return errcodes.UnsupportedMediaType()
	}
	if err != nil {
		return err
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}
	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}
	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			return errors.WithStack(err)
		}
		return errcodes.ValidationError(formatValidationError(errs[0]))
	}
	return nil
}

// bindJSON rejects fields the payload struct doesn't declare.
func (b *Binder) bindJSON(i interface{}, c echo.Context) error {
	req := c.Request()
	defer req.Body.Close()

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(i)
	if err == nil {
		return nil
	}
	if m := unknownFieldsRE.FindStringSubmatch(err.Error()); len(m) > 1 {
		return errcodes.UnknownParameter(m[1])
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
	}
	logger.FromEchoContext(c).Err(err).Warn("malformed json payload")
	return errcodes.MalformedPayload()
}

// bindForm decodes the form values and, for multipart requests, hands the
// first file of every part to the struct's FormFiles map.
func (b *Binder) bindForm(i interface{}, c echo.Context, multipartBody bool) error {
	params, err := c.FormParams()
	if err != nil {
		return errcodes.MalformedPayload()
	}
	if err := b.decodeValues(i, params, b.formDecoder); err != nil {
		return err
	}
	if !multipartBody {
		return nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return errcodes.MalformedPayload()
	}
	field := reflect.ValueOf(i).Elem().FieldByName(filesField)
	if !field.IsValid() || !field.CanSet() || field.Type() != fileHeaderType {
		return nil
	}
	files := map[string]*multipart.FileHeader{}
	for name, headers := range form.File {
		if len(headers) > 0 {
			files[name] = headers[0]
		}
	}
	field.Set(reflect.ValueOf(files))
	return nil
}

func (b *Binder) decodeValues(i interface{}, values url.Values, decoder *schema.Decoder) error {
	err := decoder.Decode(i, values)
	if err == nil {
		return nil
	}
	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return errors.WithStack(err)
	}
	for _, e := range multi {
		switch e := e.(type) {
		case schema.ConversionError:
			return errcodes.ValidationTypeError(formatSchemaConversionError(e))
		case schema.UnknownKeyError:
			return errcodes.UnknownParameter(e.Key)
		default:
			return errors.WithStack(e)
		}
	}
	return errors.WithStack(err)
}
