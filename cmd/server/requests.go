package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/technology"
)

const maxBodyBytes = 1 << 20

// validate is shared by every request type. Custom rules are registered in
// init.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Money fields are validated by value.
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		d, _ := v.Interface().(decimal.Decimal)
		return d.InexactFloat64()
	}, decimal.Decimal{})
	if err := validate.RegisterValidation("stocktype", validateStockType); err != nil {
		panic(err)
	}
}

func validateStockType(fl validator.FieldLevel) bool {
	switch domain.StockType(fl.Field().String()) {
	case domain.StockRoundBar, domain.StockTube, domain.StockPlate, domain.StockSquareBar, domain.StockHexBar:
		return true
	}
	return false
}

type createBatchRequest struct {
	PartID   int64 `json:"part_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type updateBatchRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Version  *int64 `json:"version" validate:"omitempty,gte=0"`
}

// versionRequest carries the optimistic lock version of state transitions.
type versionRequest struct {
	Version *int64 `json:"version" validate:"omitempty,gte=0"`
}

type createSetRequest struct {
	PartID int64  `json:"part_id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"required,max=200"`
}

type addBatchRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Version  *int64 `json:"version" validate:"omitempty,gte=0"`
}

type stockRequest struct {
	Type       string          `json:"type" validate:"required,stocktype"`
	Dimensions json.RawMessage `json:"dimensions" validate:"required"`
}

func (r stockRequest) stock() (domain.Stock, error) {
	s, err := domain.DecodeStock(domain.StockType(r.Type), r.Dimensions)
	if err != nil {
		return nil, domain.NewValidationError("part", "stock", err.Error())
	}
	return s, nil
}

type partRequest struct {
	PartNumber string       `json:"part_number" validate:"required,max=100"`
	Name       string       `json:"name" validate:"max=200"`
	Stock      stockRequest `json:"stock"`
	MaterialID int64        `json:"material_id" validate:"required,gt=0"`
	Version    *int64       `json:"version" validate:"omitempty,gte=0"`
}

func (r partRequest) input() (technology.PartInput, error) {
	stock, err := r.Stock.stock()
	if err != nil {
		return technology.PartInput{}, err
	}
	return technology.PartInput{
		PartNumber: r.PartNumber,
		Name:       r.Name,
		Stock:      stock,
		MaterialID: r.MaterialID,
	}, nil
}

type operationRequest struct {
	Seq           int             `json:"seq" validate:"gte=0"`
	Type          string          `json:"type" validate:"required,oneof=turning milling drilling grinding sawing cooperation"`
	MachineID     *int64          `json:"machine_id" validate:"omitempty,gt=0"`
	CuttingSpeed  float64         `json:"cutting_speed" validate:"gte=0"`
	FeedPerRev    float64         `json:"feed_per_rev" validate:"gte=0"`
	DepthOfCut    float64         `json:"depth_of_cut" validate:"gte=0"`
	SetupTimeMin  float64         `json:"setup_time_min" validate:"gte=0"`
	RunTimeMin    float64         `json:"run_time_min" validate:"gte=0"`
	IsCooperation bool            `json:"is_cooperation"`
	CoopUnitPrice decimal.Decimal `json:"coop_unit_price" validate:"gte=0"`
	CoopMinPrice  decimal.Decimal `json:"coop_min_price" validate:"gte=0"`
	Version       *int64          `json:"version" validate:"omitempty,gte=0"`
}

func (r operationRequest) input() technology.OperationInput {
	return technology.OperationInput{
		Seq:           r.Seq,
		Type:          domain.OperationType(r.Type),
		MachineID:     r.MachineID,
		CuttingSpeed:  r.CuttingSpeed,
		FeedPerRev:    r.FeedPerRev,
		DepthOfCut:    r.DepthOfCut,
		SetupTimeMin:  r.SetupTimeMin,
		RunTimeMin:    r.RunTimeMin,
		IsCooperation: r.IsCooperation,
		CoopUnitPrice: r.CoopUnitPrice,
		CoopMinPrice:  r.CoopMinPrice,
	}
}

type featureRequest struct {
	OperationID *int64  `json:"operation_id" validate:"omitempty,gt=0"`
	Type        string  `json:"type" validate:"required,oneof=hole turn face pocket slot thread"`
	Diameter    float64 `json:"diameter" validate:"gte=0"`
	Length      float64 `json:"length" validate:"gte=0"`
	Width       float64 `json:"width" validate:"gte=0"`
	Depth       float64 `json:"depth" validate:"gte=0"`
	Count       int     `json:"count" validate:"gte=0"`
	Version     *int64  `json:"version" validate:"omitempty,gte=0"`
}

func (r featureRequest) input() technology.FeatureInput {
	count := r.Count
	if count == 0 {
		count = 1
	}
	return technology.FeatureInput{
		OperationID: r.OperationID,
		Type:        domain.FeatureType(r.Type),
		Diameter:    r.Diameter,
		Length:      r.Length,
		Width:       r.Width,
		Depth:       r.Depth,
		Count:       count,
	}
}

type materialGroupRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Density float64 `json:"density" validate:"gt=0"`
	Version *int64  `json:"version" validate:"omitempty,gte=0"`
}

type materialRequest struct {
	GroupID    int64           `json:"group_id" validate:"required,gt=0"`
	Name       string          `json:"name" validate:"required,max=200"`
	PricePerKg decimal.Decimal `json:"price_per_kg" validate:"gte=0"`
	Version    *int64          `json:"version" validate:"omitempty,gte=0"`
}

type machineRequest struct {
	Name       string          `json:"name" validate:"required,max=200"`
	HourlyRate decimal.Decimal `json:"hourly_rate" validate:"gte=0"`
	Version    *int64          `json:"version" validate:"omitempty,gte=0"`
}

// decode reads a JSON body into dst and validates it. An empty body decodes
// as the zero value so transitions without a payload can rely on If-Match.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &domain.ValidationError{Entity: "request", Message: "invalid JSON body: " + err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError converts the first validator failure into a domain error.
func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return &domain.ValidationError{Entity: "request", Message: err.Error()}
	}
	f := fields[0]
	msg := "failed the " + f.Tag() + " rule"
	switch f.Tag() {
	case "required":
		msg = "is required"
	case "gt", "gte":
		msg = fmt.Sprintf("must be %s %s", map[string]string{"gt": ">", "gte": ">="}[f.Tag()], f.Param())
	case "oneof":
		msg = "must be one of " + f.Param()
	case "stocktype":
		msg = "is not a known stock type"
	}
	return domain.NewValidationError("request", f.Field(), msg)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("request", name, "must be a positive integer")
	}
	return id, nil
}

// expectedVersion returns the version the caller last read. The If-Match
// header wins over the body.
func expectedVersion(r *http.Request, body *int64) (int64, error) {
	if raw := strings.Trim(r.Header.Get("If-Match"), `W/"`); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return 0, domain.NewValidationError("request", "If-Match", "must be a version number")
		}
		return v, nil
	}
	if body == nil {
		return 0, domain.NewValidationError("request", "version", "is required")
	}
	return *body, nil
}
