package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"bloodbank/internal/middleware"
	"bloodbank/internal/model"
	"bloodbank/internal/service"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var registerOnce sync.Once

// RegisterValidators adds the bloodgroup binding tag and reports fields by their json name.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
			return model.IsValidBloodGroup(model.NormalizeBloodGroup(fl.Field().String()))
		})
	})
}

// bindJSON binds the body and turns validator failures into field-level VALIDATION_ERROR details.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
		return apperror.Validation("Invalid data provided").WithDetails(fields)
	}
	return apperror.Wrap(apperror.CodeValidation, err, "Invalid data provided")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "bloodgroup":
		return "Must be one of " + strings.Join(model.BloodGroups, ", ") + "."
	case "gt":
		return "Must be greater than " + fe.Param() + "."
	case "gte":
		return "Must be at least " + fe.Param() + "."
	case "lte":
		return "Must be at most " + fe.Param() + "."
	case "max":
		if fe.Kind() == reflect.String {
			return "Must be at most " + fe.Param() + " characters."
		}
		return "Must be at most " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}

// respondError renders err through the envelope. Server-side failures are
// attached to the context so the logging middleware reports them.
func respondError(c *gin.Context, err error) {
	status, body := response.FromError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

// actorFrom converts the authenticated identity into a workflow actor.
func actorFrom(c *gin.Context) (service.Actor, error) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.Actor{}, apperror.Unauthenticated("Authorization is missing")
	}
	return service.Actor{ID: identity.UserID, Role: identity.Role}, nil
}

// dateQuery parses an optional YYYY-MM-DD query parameter as a UTC day.
func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, apperror.Validation("Invalid date").WithDetails(map[string]string{name: "Use YYYY-MM-DD."})
	}
	return &t, nil
}
