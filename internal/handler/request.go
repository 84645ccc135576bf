package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/juggajay/siteproof-v2-sub005/internal/middleware"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
)

// readBody reads the whole request body, reporting an oversized body as 413.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierror.PayloadTooLarge(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, apierror.BadRequest("failed to read request body")
	}
	return body, nil
}

// decodeBody unmarshals a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierror.BadRequest("invalid JSON")
	}
	return nil
}

// actor returns the caller placed in the context by the auth middleware.
func actor(r *http.Request) (model.Actor, error) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return model.Actor{}, apierror.Unauthorized("")
	}
	return a, nil
}
