// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" jsonschema:"required,format=email,maxLength=254"`
	Password string `json:"password" jsonschema:"required,minLength=6,maxLength=128"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"required,format=email,maxLength=254"`
	Password string `json:"password" jsonschema:"required,minLength=1,maxLength=128"`
}

// GoogleLoginRequest is the body of POST /api/auth/google.
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" jsonschema:"required,minLength=1"`
}

// Schema names accepted by GenerateSchema.
const (
	SchemaRegister    = "register"
	SchemaLogin       = "login"
	SchemaGoogleLogin = "google-login"
)

const schemaBaseURL = "https://passgate.dev/schemas/"

type requestSchema struct {
	title string
	value any
}

var requestSchemas = map[string]requestSchema{
	SchemaRegister:    {title: "Passgate Register Request", value: &RegisterRequest{}},
	SchemaLogin:       {title: "Passgate Login Request", value: &LoginRequest{}},
	SchemaGoogleLogin: {title: "Passgate Google Login Request", value: &GoogleLoginRequest{}},
}

// SchemaNames returns the names of all request schemas, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(requestSchemas))
	for name := range requestSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateSchema returns the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	rs, ok := requestSchemas[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("unknown schema %q", name)
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(rs.value)
	schema.ID = jsonschema.ID(schemaURL(name))
	schema.Title = rs.title

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("name", name).Wrap(err)
	}
	return data, nil
}

func schemaURL(name string) string {
	return schemaBaseURL + name + ".schema.json"
}

// FieldError describes one rejected part of a request body.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// bodyValidator checks request bodies against the compiled request schemas.
type bodyValidator struct {
	schemas map[string]*jschema.Schema
}

func newBodyValidator() (*bodyValidator, error) {
	c := jschema.NewCompiler()
	c.AssertFormat()

	for name := range requestSchemas {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		if err := c.AddResource(schemaURL(name), doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
	}

	v := &bodyValidator{schemas: make(map[string]*jschema.Schema, len(requestSchemas))}
	for name := range requestSchemas {
		sch, err := c.Compile(schemaURL(name))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		v.schemas[name] = sch
	}
	return v, nil
}

// decode validates body against the named schema and unmarshals it into dst.
// A non-empty FieldError slice means the client sent an invalid body.
func (v *bodyValidator) decode(name string, body []byte, dst any) ([]FieldError, error) {
	sch, ok := v.schemas[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("unknown schema %q", name)
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return []FieldError{{Path: "", Message: "malformed JSON"}}, nil
	}

	if err := sch.Validate(inst); err != nil {
		var verr *jschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, oops.Code("SCHEMA_VALIDATE_FAILED").With("name", name).Wrap(err)
		}
		return fieldErrors(verr), nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return []FieldError{{Path: "", Message: "malformed JSON"}}, nil
	}
	return nil, nil
}

// fieldErrors flattens a validation error into leaf failures.
func fieldErrors(verr *jschema.ValidationError) []FieldError {
	out := verr.BasicOutput()
	details := make([]FieldError, 0, len(out.Errors))
	for _, unit := range out.Errors {
		if unit.Error == nil {
			continue
		}
		details = append(details, FieldError{
			Path:    unit.InstanceLocation,
			Message: unit.Error.String(),
		})
	}
	if len(details) == 0 {
		details = append(details, FieldError{Path: "", Message: verr.Error()})
	}
	return details
}
