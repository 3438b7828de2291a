package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies decoded by DecodeAndValidate.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DecodeAndValidate decodes the JSON body into dst and runs its validate tags.
// On failure it writes the error response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		reason, msg := describeValidation(err)
		WriteBadRequest(w, reason, msg)
		return false
	}
	return true
}

// describeValidation turns the first failed field into a reason code and a
// message. Fields are named by their JSON key.
func describeValidation(err error) (string, string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ReasonInvalidField, err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	if fe.Tag() == "required" {
		return ReasonMissingField, fmt.Sprintf("%s is required", field)
	}
	if fe.Param() != "" {
		return ReasonInvalidField, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return ReasonInvalidField, fmt.Sprintf("%s failed %s", field, fe.Tag())
}

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
