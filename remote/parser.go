package remote

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BemiHQ/BemiSync/common"
)

// Parser reads typed values out of a provider document.
// Missing, null and empty values come back as untyped nil so they land as NULL columns.
type Parser struct {
	doc gjson.Result
}

func NewParser(raw []byte) Parser {
	return Parser{doc: gjson.ParseBytes(raw)}
}

func NewParserFromResult(doc gjson.Result) Parser {
	return Parser{doc: doc}
}

func (parser Parser) Get(path string) gjson.Result {
	return parser.doc.Get(path)
}

func (parser Parser) String(path string) interface{} {
	value := parser.doc.Get(path)
	if !value.Exists() || value.Type == gjson.Null || value.String() == "" {
		return nil
	}
	return value.String()
}

func (parser Parser) Int(path string) interface{} {
	value := parser.doc.Get(path)
	switch value.Type {
	case gjson.Number:
		integer, err := strconv.ParseInt(value.Raw, 10, 64)
		if err == nil {
			return integer
		}
		return int64(math.Round(value.Num))
	case gjson.String:
		number, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil {
			return nil
		}
		return int64(math.Round(number))
	default:
		return nil
	}
}

func (parser Parser) IntOrZero(path string) int64 {
	if value, ok := parser.Int(path).(int64); ok {
		return value
	}
	return 0
}

func (parser Parser) Bool(path string) interface{} {
	value := parser.doc.Get(path)
	switch {
	case value.Type == gjson.True || value.Str == "true":
		return true
	case value.Type == gjson.False || value.Str == "false":
		return false
	default:
		return nil
	}
}

func (parser Parser) Time(path string) *time.Time {
	value := parser.doc.Get(path)
	switch value.Type {
	case gjson.String:
		if value.Str == "" {
			return nil
		}
		parsed, err := common.ParseTimestamp(value.Str)
		if err != nil {
			return nil
		}
		return &parsed
	case gjson.Number:
		parsed := common.MsToTime(value.Int())
		return &parsed
	default:
		return nil
	}
}

// TimeValue is Time for Fields maps, a nil *time.Time would not marshal as null consistently
func (parser Parser) TimeValue(path string) interface{} {
	parsed := parser.Time(path)
	if parsed == nil {
		return nil
	}
	return *parsed
}

func (parser Parser) Strings(path string) []string {
	values := []string{}
	for _, value := range parser.doc.Get(path).Array() {
		if value.String() != "" {
			values = append(values, value.String())
		}
	}
	return values
}

// Raw returns the JSON at path, or an empty object
func (parser Parser) Raw(path string) []byte {
	value := parser.doc.Get(path)
	if !value.Exists() || !value.IsObject() {
		return []byte("{}")
	}
	return []byte(value.Raw)
}

func joinNonEmpty(separator string, values ...interface{}) interface{} {
	parts := []string{}
	for _, value := range values {
		if str, ok := value.(string); ok && str != "" {
			parts = append(parts, str)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, separator)
}

// -------------------------------------------------------------------------------------------------

type EmailAddress struct {
	EmailAddress     string `json:"emailAddress"`
	EmailAddressType string `json:"emailAddressType"`
}

type PhoneNumber struct {
	PhoneNumber     string `json:"phoneNumber"`
	PhoneNumberType string `json:"phoneNumberType"`
}

type Address struct {
	Street1     interface{} `json:"street1"`
	Street2     interface{} `json:"street2"`
	City        interface{} `json:"city"`
	State       interface{} `json:"state"`
	PostalCode  interface{} `json:"postalCode"`
	Country     interface{} `json:"country"`
	AddressType string      `json:"addressType"`
}

func (address Address) IsEmpty() bool {
	return address.Street1 == nil && address.Street2 == nil && address.City == nil && address.State == nil && address.PostalCode == nil && address.Country == nil
}

func emailAddresses(addressType string, emails ...interface{}) []EmailAddress {
	result := []EmailAddress{}
	for _, email := range emails {
		if str, ok := email.(string); ok && str != "" {
			result = append(result, EmailAddress{EmailAddress: str, EmailAddressType: addressType})
			addressType = "other"
		}
	}
	return result
}

func phoneNumbers(phones map[string]interface{}) []PhoneNumber {
	result := []PhoneNumber{}
	for _, phoneType := range []string{"primary", "mobile", "fax", "other"} {
		if str, ok := phones[phoneType].(string); ok && str != "" {
			result = append(result, PhoneNumber{PhoneNumber: str, PhoneNumberType: phoneType})
		}
	}
	return result
}

func addresses(address Address) []Address {
	if address.IsEmpty() {
		return []Address{}
	}
	return []Address{address}
}

func mapAndEmit(object common.ObjectDescriptor, mapper *RecordMapper, record *common.CommonRecord, nativeFields []byte, rawPayload []byte, emit EmitFunc) error {
	keep, err := mapper.Apply(object, record, nativeFields, rawPayload)
	if err != nil || !keep {
		return err
	}
	return emit(record)
}

func unsupportedObjectError(providerName string, object common.ObjectDescriptor) error {
	return common.NewConfigurationError("%s does not support %s", providerName, object.String())
}
