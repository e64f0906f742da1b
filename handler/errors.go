package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MUKTHARS/clmprod-sub000/middleware"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var statusByKind = map[service.ErrorKind]int{
	service.KindAuthorization:     http.StatusForbidden,
	service.KindNotFound:          http.StatusNotFound,
	service.KindConflict:          http.StatusConflict,
	service.KindValidation:        http.StatusBadRequest,
	service.KindInvalidTransition: http.StatusUnprocessableEntity,
	service.KindNormalization:     http.StatusUnprocessableEntity,
}

// respondError writes err as {"error", "kind"}. Errors without a kind are
// infrastructure failures and are not echoed to the client.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	var e *service.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Message
	}
	c.JSON(status, gin.H{"error": msg, "kind": string(kind)})
}

// bindError reports a request body that failed to decode or validate
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid request",
			"kind":   string(service.KindValidation),
			"fields": fields,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "kind": string(service.KindValidation)})
}

var (
	registerOnce sync.Once
	registerErr  error
)

// domainValidations are the binding tags request structs may use
var domainValidations = map[string]validator.Func{
	"notblank": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
	"role": func(fl validator.FieldLevel) bool {
		_, ok := model.ParseRole(fl.Field().String())
		return ok
	},
	"recommendation": func(fl validator.FieldLevel) bool {
		_, ok := model.ParseRecommendation(fl.Field().String())
		return ok
	},
	"decision": func(fl validator.FieldLevel) bool {
		d := model.Decision(strings.ToLower(strings.TrimSpace(fl.Field().String())))
		return d.Valid()
	},
}

func registerValidations(v *validator.Validate, funcs map[string]validator.Func) error {
	for tag, fn := range funcs {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q validation: %w", tag, err)
		}
	}
	return nil
}

// RegisterValidators adds the domain binding tags to gin's validator engine.
// Startup must stop on error; requests using the tags would panic.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin binding engine is not a go-playground validator")
			return
		}
		registerErr = registerValidations(v, domainValidations)
	})
	return registerErr
}

// parseExpected reads the optional expected_status of a mutating request
func parseExpected(raw string) (model.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	s, ok := model.ParseStatus(raw)
	if !ok {
		return "", &service.Error{Kind: service.KindValidation, Message: "unknown expected_status " + raw}
	}
	return s, nil
}

func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return p, ok
}
