package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/BemiHQ/BemiSync/common"
)

const (
	ATTIO_PROVIDER_NAME = "attio"
	ATTIO_API_URL       = "https://api.attio.com"
	ATTIO_API_LIMIT     = 500

	ATTIO_OBJECT_COMPANIES = "companies"
	ATTIO_OBJECT_DEALS     = "deals"
	ATTIO_OBJECT_PEOPLE    = "people"
)

var attioCommonObjects = map[string]string{
	"account":     ATTIO_OBJECT_COMPANIES,
	"contact":     ATTIO_OBJECT_PEOPLE,
	"opportunity": ATTIO_OBJECT_DEALS,
}

// Keys that hold the scalar of an Attio attribute value, by attribute type
var attioValuePaths = []string{
	"value",
	"domain",
	"target_record_id",
	"option.title",
	"status.title",
	"currency_value",
	"interacted_at",
	"referenced_actor_id",
	"phone_number",
	"email_address",
}

// AttioClient syncs crm objects.
// The records query API has no modification filter, so every run is a full extraction.
type AttioClient struct {
	Config     *common.CommonConfig
	Connection common.Connection
	ApiUrl     string
	HttpClient *http.Client
}

func NewAttioClient(config *common.CommonConfig, connection common.Connection) (Client, error) {
	apiUrl := ATTIO_API_URL
	if connection.ApiUrl != "" {
		apiUrl = strings.TrimSuffix(connection.ApiUrl, "/")
	}

	return &AttioClient{
		Config:     config,
		Connection: connection,
		ApiUrl:     apiUrl,
		HttpClient: newHttpClient(),
	}, nil
}

func (attio *AttioClient) ProviderName() string {
	return ATTIO_PROVIDER_NAME
}

func (attio *AttioClient) ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) (RecordStream, error) {
	if object.Category != common.CategoryCrm {
		return nil, unsupportedObjectError(ATTIO_PROVIDER_NAME, object)
	}
	if onLiveness == nil {
		onLiveness = func() {}
	}
	if updatedAfter != nil {
		common.LogDebug(attio.Config, "Attio does not filter by modification time, extracting all", object.String())
	}

	var produce ProduceFunc
	switch {
	case object.ObjectKind == common.ObjectKindCommon && object.ObjectName == "user":
		produce = func(ctx context.Context, emit EmitFunc) error {
			return attio.listWorkspaceMembers(ctx, object, mapper, onLiveness, emit)
		}
	case object.ObjectKind == common.ObjectKindCommon:
		slug, ok := attioCommonObjects[object.ObjectName]
		if !ok {
			return nil, unsupportedObjectError(ATTIO_PROVIDER_NAME, object)
		}
		produce = func(ctx context.Context, emit EmitFunc) error {
			return attio.queryRecords(ctx, object, slug, mapper, onLiveness, emit)
		}
	case object.ObjectKind == common.ObjectKindStandard || object.ObjectKind == common.ObjectKindCustom:
		produce = func(ctx context.Context, emit EmitFunc) error {
			return attio.queryRecords(ctx, object, object.ObjectName, mapper, onLiveness, emit)
		}
	default:
		return nil, unsupportedObjectError(ATTIO_PROVIDER_NAME, object)
	}

	return NewRecordStream(ctx, attio.Config, common.DEFAULT_CAPPED_BUFFER_SIZE, produce), nil
}

type attioListResponse struct {
	Data []json.RawMessage `json:"data"`
}

func (attio *AttioClient) queryRecords(ctx context.Context, object common.ObjectDescriptor, slug string, mapper *RecordMapper, onLiveness func(), emit EmitFunc) error {
	offset := 0
	for {
		var response attioListResponse
		common.LogDebug(attio.Config, "Querying Attio", slug, "offset:", offset)
		err := newRequest(attio.HttpClient, attio.ApiUrl+"/v2/objects/"+slug+"/records/query", attio.Connection.AccessToken).
			BodyJSON(map[string]interface{}{"limit": ATTIO_API_LIMIT, "offset": offset}).
			ToJSON(&response).
			Fetch(ctx)
		if err != nil {
			return classifyRequestError(err, ATTIO_PROVIDER_NAME, "query "+slug)
		}
		onLiveness()

		for _, raw := range response.Data {
			parser := NewParser(raw)
			record := &common.CommonRecord{
				RemoteId:        parser.Get("id.record_id").String(),
				RemoteCreatedAt: parser.Time("created_at"),
			}
			record.SetDeletion(false, nil, time.Now())
			record.ComputeLastModifiedAt()

			values, err := flattenAttioValues(parser.Get("values"))
			if err != nil {
				return common.NewDataQualityError(err, "reading %s record %s", slug, record.RemoteId)
			}
			if object.ObjectKind == common.ObjectKindCommon {
				record.Fields = normalizeAttioRecord(object.ObjectName, NewParser(values))
			}

			err = mapAndEmit(object, mapper, record, values, raw, emit)
			if err != nil {
				return err
			}
		}

		if len(response.Data) < ATTIO_API_LIMIT {
			return nil
		}
		offset += ATTIO_API_LIMIT
	}
}

func (attio *AttioClient) listWorkspaceMembers(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, onLiveness func(), emit EmitFunc) error {
	var response attioListResponse
	err := newRequest(attio.HttpClient, attio.ApiUrl+"/v2/workspace_members", attio.Connection.AccessToken).
		ToJSON(&response).
		Fetch(ctx)
	if err != nil {
		return classifyRequestError(err, ATTIO_PROVIDER_NAME, "list workspace members")
	}
	onLiveness()

	for _, raw := range response.Data {
		parser := NewParser(raw)
		record := &common.CommonRecord{
			RemoteId:        parser.Get("id.workspace_member_id").String(),
			RemoteCreatedAt: parser.Time("created_at"),
			Fields: map[string]interface{}{
				"name":      joinNonEmpty(" ", parser.String("first_name"), parser.String("last_name")),
				"email":     parser.String("email_address"),
				"is_active": parser.Get("access_level").String() != "suspended",
			},
		}
		record.SetDeletion(false, nil, time.Now())
		record.ComputeLastModifiedAt()

		err = mapAndEmit(object, mapper, record, raw, raw, emit)
		if err != nil {
			return err
		}
	}
	return nil
}

// flattenAttioValues turns {"name": [{"value": "Acme", ...}]} into {"name": "Acme"}.
// Multi-valued attributes become arrays.
func flattenAttioValues(values gjson.Result) ([]byte, error) {
	flattened := []byte("{}")
	var err error

	values.ForEach(func(key, attributeValues gjson.Result) bool {
		scalars := []gjson.Result{}
		for _, attributeValue := range attributeValues.Array() {
			if scalar, ok := attioScalar(attributeValue); ok {
				scalars = append(scalars, scalar)
			}
		}

		path := escapeSjsonPath(key.String())
		switch len(scalars) {
		case 0:
			flattened, err = sjson.SetBytes(flattened, path, nil)
		case 1:
			flattened, err = sjson.SetRawBytes(flattened, path, []byte(scalars[0].Raw))
		default:
			raws := make([]string, len(scalars))
			for i, scalar := range scalars {
				raws[i] = scalar.Raw
			}
			flattened, err = sjson.SetRawBytes(flattened, path, []byte("["+strings.Join(raws, ",")+"]"))
		}
		return err == nil
	})

	return flattened, err
}

func attioScalar(attributeValue gjson.Result) (gjson.Result, bool) {
	for _, path := range attioValuePaths {
		scalar := attributeValue.Get(path)
		if scalar.Exists() {
			return scalar, true
		}
	}
	// Personal names and locations are structured, keep them whole
	if attributeValue.Get("full_name").Exists() || attributeValue.Get("line_1").Exists() || attributeValue.Get("locality").Exists() {
		return attributeValue, true
	}
	return gjson.Result{}, false
}

func attioLocation(parser Parser, path string) []Address {
	location := parser.Get(path)
	if location.IsArray() {
		location = location.Get("0")
	}
	locationParser := NewParserFromResult(location)

	return addresses(Address{
		Street1:     joinNonEmpty(", ", locationParser.String("line_1"), locationParser.String("line_2")),
		Street2:     joinNonEmpty(", ", locationParser.String("line_3"), locationParser.String("line_4")),
		City:        locationParser.String("locality"),
		State:       locationParser.String("region"),
		PostalCode:  locationParser.String("postcode"),
		Country:     locationParser.String("country_code"),
		AddressType: "primary",
	})
}

func firstString(parser Parser, path string) interface{} {
	value := parser.Get(path)
	if value.IsArray() {
		return NewParserFromResult(value).String("0")
	}
	return parser.String(path)
}

func allStrings(parser Parser, path string) []interface{} {
	value := parser.Get(path)
	if !value.IsArray() {
		return []interface{}{parser.String(path)}
	}
	result := []interface{}{}
	for _, item := range value.Array() {
		result = append(result, item.String())
	}
	return result
}

func normalizeAttioRecord(objectName string, parser Parser) map[string]interface{} {
	switch objectName {
	case "account":
		return map[string]interface{}{
			"name":                parser.String("name"),
			"description":         parser.String("description"),
			"industry":            firstString(parser, "categories"),
			"website":             firstString(parser, "domains"),
			"number_of_employees": parser.Int("employee_range"),
			"addresses":           attioLocation(parser, "primary_location"),
			"phone_numbers":       []PhoneNumber{},
			"lifecycle_stage":     nil,
			"last_activity_at":    parser.TimeValue("last_interaction"),
			"owner_id":            nil,
		}
	case "contact":
		phones := map[string]interface{}{"primary": firstString(parser, "phone_numbers")}
		return map[string]interface{}{
			"first_name":       parser.String("name.first_name"),
			"last_name":        parser.String("name.last_name"),
			"addresses":        attioLocation(parser, "primary_location"),
			"email_addresses":  emailAddresses("primary", allStrings(parser, "email_addresses")...),
			"phone_numbers":    phoneNumbers(phones),
			"last_activity_at": parser.TimeValue("last_interaction"),
			"lifecycle_stage":  nil,
			"account_id":       firstString(parser, "company"),
			"owner_id":         nil,
		}
	case "opportunity":
		return map[string]interface{}{
			"name":             parser.String("name"),
			"description":      nil,
			"amount":           parser.Int("value"),
			"stage":            parser.String("stage"),
			"status":           attioDealStatus(parser.Get("stage").String()),
			"last_activity_at": parser.TimeValue("last_interaction"),
			"pipeline":         nil,
			"close_date":       nil,
			"account_id":       firstString(parser, "associated_company"),
			"owner_id":         parser.String("owner"),
		}
	default:
		return nil
	}
}

func attioDealStatus(stage string) string {
	switch strings.ToLower(stage) {
	case "won":
		return "WON"
	case "lost":
		return "LOST"
	default:
		return "OPEN"
	}
}
