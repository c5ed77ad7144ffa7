package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/okian/cupcakes/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// cupcakeJSON is the wire shape of a cupcake record.
type cupcakeJSON struct {
	ID     int64   `json:"id"`
	Flavor string  `json:"flavor"`
	Size   string  `json:"size"`
	Rating float64 `json:"rating"`
	Image  string  `json:"image"`
}

type cupcakeResponse struct {
	Cupcake cupcakeJSON `json:"cupcake"`
}

type cupcakesResponse struct {
	Cupcakes []cupcakeJSON `json:"cupcakes"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toWire(c model.Cupcake) cupcakeJSON {
	return cupcakeJSON{
		ID:     c.ID,
		Flavor: c.Flavor,
		Size:   c.Size,
		Rating: c.Rating,
		Image:  c.Image,
	}
}

func toWireList(cs []model.Cupcake) []cupcakeJSON {
	out := make([]cupcakeJSON, len(cs))
	for i, c := range cs {
		out[i] = toWire(c)
	}
	return out
}

// decodeCreate reads a create body. Unknown keys are ignored; a present key
// of the wrong JSON type is a validation error.
func decodeCreate(r io.Reader) (model.CreateParams, error) {
	fields, err := decodeObject(r)
	if err != nil {
		return model.CreateParams{}, err
	}
	var p model.CreateParams
	if p.Flavor, err = stringField(fields, "flavor"); err != nil {
		return model.CreateParams{}, err
	}
	if p.Size, err = stringField(fields, "size"); err != nil {
		return model.CreateParams{}, err
	}
	if p.Rating, err = numberField(fields, "rating"); err != nil {
		return model.CreateParams{}, err
	}
	if p.Image, err = stringField(fields, "image"); err != nil {
		return model.CreateParams{}, err
	}
	return p, p.Validate()
}

// decodeUpdate reads a partial update body. Only keys present in the body are set.
func decodeUpdate(r io.Reader) (model.UpdateParams, error) {
	fields, err := decodeObject(r)
	if err != nil {
		return model.UpdateParams{}, err
	}
	var p model.UpdateParams
	if p.Flavor, err = stringField(fields, "flavor"); err != nil {
		return model.UpdateParams{}, err
	}
	if p.Size, err = stringField(fields, "size"); err != nil {
		return model.UpdateParams{}, err
	}
	if p.Rating, err = numberField(fields, "rating"); err != nil {
		return model.UpdateParams{}, err
	}
	if p.Image, err = stringField(fields, "image"); err != nil {
		return model.UpdateParams{}, err
	}
	return p, p.Validate()
}

func decodeObject(r io.Reader) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, &model.FieldError{Field: "body", Reason: fmt.Sprintf("malformed JSON object: %v", err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &model.FieldError{Field: "body", Reason: "unexpected data after JSON object"}
	}
	if fields == nil {
		return nil, &model.FieldError{Field: "body", Reason: "must be a JSON object"}
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) (model.Optional[string], error) {
	raw, ok := fields[key]
	if !ok {
		return model.Optional[string]{}, nil
	}
	var v string
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return model.Optional[string]{}, &model.FieldError{Field: key, Reason: "must be a string"}
	}
	return model.Some(v), nil
}

func numberField(fields map[string]json.RawMessage, key string) (model.Optional[float64], error) {
	raw, ok := fields[key]
	if !ok {
		return model.Optional[float64]{}, nil
	}
	var v float64
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return model.Optional[float64]{}, &model.FieldError{Field: key, Reason: "must be a number"}
	}
	return model.Some(v), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
