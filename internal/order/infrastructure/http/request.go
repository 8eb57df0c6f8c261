package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidJSON = "Invalid JSON format"
	msgNotObject   = "JSON body must be an object"
)

var fieldMessages = map[string]map[string]string{
	"sum": {
		"required": "Sum is required",
		"type":     "Sum must be an integer",
		"gte":      "Sum must be non-negative",
	},
	"contractorType": {
		"required": "Contractor type is required",
		"type":     "Contractor type must be an integer",
		"oneof":    "Contractor type must be 1 (individual) or 2 (legal entity)",
	},
	"items": {
		"required": "Items are required",
		"type":     "Items must be an array",
		"min":      "At least one item is required",
	},
	"item": {
		"type": "Item must be an object",
	},
	"productId": {
		"required": "Product ID is required",
		"type":     "Product ID must be an integer",
		"gt":       "Product ID must be a positive integer",
	},
	"price": {
		"required": "Price is required",
		"type":     "Price must be an integer",
		"gte":      "Price must be non-negative",
	},
	"quantity": {
		"required": "Quantity is required",
		"type":     "Quantity must be an integer",
		"gt":       "Quantity must be a positive integer",
	},
	"limit": {
		"required": "Limit is required",
		"type":     "Limit must be an integer",
		"gt":       "Limit must be greater than 0",
		"lte":      "Limit must not exceed 1000",
	},
	"uniqueOrderNumber": {
		"required":            "Unique order number is required",
		"unique_order_number": domain.ErrMalformedUniqueNumber.Msg,
	},
}

func fieldMessage(field, tag string) string {
	if m, ok := fieldMessages[field][tag]; ok {
		return m
	}
	return "This value is not valid"
}

// requestError is a 400 response: either one message or a set of messages
// keyed by property path.
type requestError struct {
	message string
	fields  map[string]string
}

func (e *requestError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("%d invalid fields", len(e.fields))
}

func badRequest(msg string) *requestError {
	return &requestError{message: msg}
}

type createOrderRequest struct {
	Sum            *int64            `json:"sum" validate:"required,gte=0"`
	ContractorType *int64            `json:"contractorType" validate:"required,oneof=1 2"`
	Items          []json.RawMessage `json:"items" validate:"required,min=1"`
}

type createOrderItemRequest struct {
	ProductID *int64 `json:"productId" validate:"required,gt=0"`
	Price     *int64 `json:"price" validate:"required,gte=0"`
	Quantity  *int64 `json:"quantity" validate:"required,gt=0"`
}

type recentOrdersRequest struct {
	Limit *int `json:"limit" validate:"required,gt=0,lte=1000"`
}

type completionRequest struct {
	UniqueOrderNumber string `json:"uniqueOrderNumber" validate:"required,unique_order_number"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	err := v.RegisterValidation("unique_order_number", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseUniqueOrderNumber(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(err)
	}
	return v
}

// collect adds the validator's complaints about s to errs, prefixing each
// property path. Keys already present (type errors) win.
func collect(v *validator.Validate, s any, prefix string, errs map[string]string) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		key := prefix + fe.Field()
		if _, ok := errs[key]; !ok {
			errs[key] = fieldMessage(fe.Field(), fe.Tag())
		}
	}
	return nil
}

// readObject reads a JSON object body. An empty body counts as {}.
func readObject(body io.Reader) (map[string]json.RawMessage, *requestError) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, badRequest(msgInvalidJSON)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return nil, badRequest(msgInvalidJSON)
	}
	if raw[0] != '{' {
		return nil, badRequest(msgNotObject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, badRequest(msgNotObject)
	}
	return fields, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// intField decodes fields[name]; a present value of the wrong JSON type is
// reported under key.
func intField(fields map[string]json.RawMessage, name, key string, errs map[string]string) *int64 {
	raw := fields[name]
	if isAbsent(raw) {
		return nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		errs[key] = fieldMessage(name, "type")
		return nil
	}
	return &n
}

func decodeCreateOrder(v *validator.Validate, body io.Reader) (application.CreateOrderCommand, *requestError) {
	fields, rerr := readObject(body)
	if rerr != nil {
		return application.CreateOrderCommand{}, rerr
	}

	errs := map[string]string{}
	req := createOrderRequest{
		Sum:            intField(fields, "sum", "sum", errs),
		ContractorType: intField(fields, "contractorType", "contractorType", errs),
	}
	if raw := fields["items"]; !isAbsent(raw) {
		if err := json.Unmarshal(raw, &req.Items); err != nil {
			errs["items"] = fieldMessage("items", "type")
		}
	}
	if err := collect(v, req, "", errs); err != nil {
		return application.CreateOrderCommand{}, badRequest(err.Error())
	}

	items := make([]application.CreateOrderItem, 0, len(req.Items))
	for i, raw := range req.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		var itemFields map[string]json.RawMessage
		if isAbsent(raw) || raw[0] != '{' || json.Unmarshal(raw, &itemFields) != nil {
			errs[fmt.Sprintf("items[%d]", i)] = fieldMessage("item", "type")
			continue
		}
		item := createOrderItemRequest{
			ProductID: intField(itemFields, "productId", prefix+"productId", errs),
			Price:     intField(itemFields, "price", prefix+"price", errs),
			Quantity:  intField(itemFields, "quantity", prefix+"quantity", errs),
		}
		if err := collect(v, item, prefix, errs); err != nil {
			return application.CreateOrderCommand{}, badRequest(err.Error())
		}
		if item.ProductID != nil && item.Price != nil && item.Quantity != nil {
			items = append(items, application.CreateOrderItem{
				ProductID: *item.ProductID,
				Price:     *item.Price,
				Quantity:  *item.Quantity,
			})
		}
	}
	if len(errs) > 0 {
		return application.CreateOrderCommand{}, &requestError{fields: errs}
	}

	return application.CreateOrderCommand{
		Sum:            *req.Sum,
		ContractorType: int(*req.ContractorType),
		Items:          items,
	}, nil
}

func decodeRecentOrders(v *validator.Validate, limit string) (int, *requestError) {
	errs := map[string]string{}
	var req recentOrdersRequest
	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return 0, &requestError{fields: map[string]string{"limit": fieldMessage("limit", "type")}}
		}
		req.Limit = &n
	}
	if err := collect(v, req, "", errs); err != nil {
		return 0, badRequest(err.Error())
	}
	if len(errs) > 0 {
		return 0, &requestError{fields: errs}
	}
	return *req.Limit, nil
}

func decodeCompletion(v *validator.Validate, uniqueOrderNumber string) (string, *requestError) {
	errs := map[string]string{}
	req := completionRequest{UniqueOrderNumber: uniqueOrderNumber}
	if err := collect(v, req, "", errs); err != nil {
		return "", badRequest(err.Error())
	}
	if len(errs) > 0 {
		return "", &requestError{fields: errs}
	}
	return req.UniqueOrderNumber, nil
}
