package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BemiHQ/BemiSync/common"
)

const (
	HUBSPOT_PROVIDER_NAME = "hubspot"
	HUBSPOT_API_URL       = "https://api.hubapi.com"

	HUBSPOT_PAGE_LIMIT         = 100
	HUBSPOT_SEARCH_MAX_RESULTS = 10_000 // The search API refuses to page past this many results

	HUBSPOT_DEFAULT_LAST_MODIFIED_PROPERTY = "hs_lastmodifieddate"
)

type hubspotObject struct {
	objectType           string
	properties           []string
	associations         []string
	lastModifiedProperty string
	normalize            func(parser Parser) map[string]interface{}
}

var hubspotCommonObjects = map[string]hubspotObject{
	"account": {
		objectType: "companies",
		properties: []string{
			"name", "description", "industry", "website", "numberofemployees", "address", "address2", "city", "state", "zip",
			"country", "phone", "lifecyclestage", "notes_last_updated", "hubspot_owner_id", "createdate", "hs_lastmodifieddate",
		},
		lastModifiedProperty: HUBSPOT_DEFAULT_LAST_MODIFIED_PROPERTY,
		normalize:            normalizeHubspotCompany,
	},
	"contact": {
		objectType: "contacts",
		properties: []string{
			"firstname", "lastname", "email", "hs_additional_emails", "phone", "mobilephone", "fax", "address", "city", "state",
			"zip", "country", "lifecyclestage", "notes_last_updated", "hubspot_owner_id", "associatedcompanyid", "createdate",
			"lastmodifieddate",
		},
		// Contacts predate hs_lastmodifieddate and keep their own property
		lastModifiedProperty: "lastmodifieddate",
		normalize:            normalizeHubspotContact,
	},
	"opportunity": {
		objectType: "deals",
		properties: []string{
			"dealname", "description", "amount", "dealstage", "pipeline", "closedate", "notes_last_updated", "hubspot_owner_id",
			"hs_is_closed", "hs_is_closed_won", "createdate", "hs_lastmodifieddate",
		},
		associations:         []string{"companies"},
		lastModifiedProperty: HUBSPOT_DEFAULT_LAST_MODIFIED_PROPERTY,
		normalize:            normalizeHubspotDeal,
	},
}

// HubspotClient syncs crm objects.
// Incremental runs use the search API, which is exclusive of updatedAfter and does not return archived records.
// Full runs list both live and archived records.
type HubspotClient struct {
	Config     *common.CommonConfig
	Connection common.Connection
	ApiUrl     string
	HttpClient *http.Client
}

func NewHubspotClient(config *common.CommonConfig, connection common.Connection) (Client, error) {
	apiUrl := HUBSPOT_API_URL
	if connection.ApiUrl != "" {
		apiUrl = strings.TrimSuffix(connection.ApiUrl, "/")
	}

	return &HubspotClient{
		Config:     config,
		Connection: connection,
		ApiUrl:     apiUrl,
		HttpClient: newHttpClient(),
	}, nil
}

func (client *HubspotClient) ProviderName() string {
	return HUBSPOT_PROVIDER_NAME
}

func (client *HubspotClient) ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) (RecordStream, error) {
	if object.Category != common.CategoryCrm {
		return nil, unsupportedObjectError(HUBSPOT_PROVIDER_NAME, object)
	}
	if onLiveness == nil {
		onLiveness = func() {}
	}

	var produce ProduceFunc
	switch object.ObjectKind {
	case common.ObjectKindCommon:
		if object.ObjectName == "user" {
			produce = func(ctx context.Context, emit EmitFunc) error {
				return client.listOwners(ctx, object, mapper, updatedAfter, onLiveness, emit)
			}
			break
		}

		hubspotObject, ok := hubspotCommonObjects[object.ObjectName]
		if !ok {
			return nil, unsupportedObjectError(HUBSPOT_PROVIDER_NAME, object)
		}
		produce = client.objectProducer(object, hubspotObject, mapper, updatedAfter, onLiveness)
	case common.ObjectKindStandard, common.ObjectKindCustom:
		hubspotObject := hubspotObject{
			objectType:           object.ObjectName,
			properties:           append(mapper.FieldMapper.MappedFieldNames(), "hs_createdate", HUBSPOT_DEFAULT_LAST_MODIFIED_PROPERTY),
			lastModifiedProperty: HUBSPOT_DEFAULT_LAST_MODIFIED_PROPERTY,
		}
		produce = client.objectProducer(object, hubspotObject, mapper, updatedAfter, onLiveness)
	default:
		return nil, unsupportedObjectError(HUBSPOT_PROVIDER_NAME, object)
	}

	return NewRecordStream(ctx, client.Config, common.DEFAULT_CAPPED_BUFFER_SIZE, produce), nil
}

type hubspotPage struct {
	Results []json.RawMessage `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (page hubspotPage) nextAfter() string {
	if page.Paging == nil || page.Paging.Next == nil {
		return ""
	}
	return page.Paging.Next.After
}

func (client *HubspotClient) objectProducer(object common.ObjectDescriptor, hubspotObject hubspotObject, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) ProduceFunc {
	return func(ctx context.Context, emit EmitFunc) error {
		emitResult := func(raw json.RawMessage) error {
			record := client.toRecord(hubspotObject, raw)
			parser := NewParser(raw)
			return mapAndEmit(object, mapper, record, parser.Raw("properties"), raw, emit)
		}

		if updatedAfter != nil {
			return client.search(ctx, hubspotObject, *updatedAfter, onLiveness, emitResult)
		}

		for _, archived := range []bool{false, true} {
			after := ""
			for {
				var page hubspotPage
				request := newRequest(client.HttpClient, client.ApiUrl+"/crm/v3/objects/"+hubspotObject.objectType, client.Connection.AccessToken).
					Param("limit", strconv.Itoa(HUBSPOT_PAGE_LIMIT)).
					Param("archived", strconv.FormatBool(archived)).
					Param("properties", strings.Join(hubspotObject.properties, ",")).
					ToJSON(&page)
				if len(hubspotObject.associations) > 0 {
					request.Param("associations", strings.Join(hubspotObject.associations, ","))
				}
				if after != "" {
					request.Param("after", after)
				}

				common.LogDebug(client.Config, "Listing HubSpot", hubspotObject.objectType, "after:", after, "archived:", archived)
				err := request.Fetch(ctx)
				if err != nil {
					return classifyRequestError(err, HUBSPOT_PROVIDER_NAME, "list "+hubspotObject.objectType)
				}
				onLiveness()

				for _, raw := range page.Results {
					err = emitResult(raw)
					if err != nil {
						return err
					}
				}

				after = page.nextAfter()
				if after == "" {
					break
				}
			}
		}
		return nil
	}
}

func (client *HubspotClient) search(ctx context.Context, hubspotObject hubspotObject, updatedAfter time.Time, onLiveness func(), emitResult func(raw json.RawMessage) error) error {
	lowerBoundMs := updatedAfter.UnixMilli()
	operator := "GT"
	after := ""
	fetchedInWindow := 0
	lastSeenMs := lowerBoundMs

	for {
		body := map[string]interface{}{
			"filterGroups": []interface{}{
				map[string]interface{}{"filters": []interface{}{
					map[string]interface{}{"propertyName": hubspotObject.lastModifiedProperty, "operator": operator, "value": strconv.FormatInt(lowerBoundMs, 10)},
				}},
			},
			"sorts":      []interface{}{map[string]interface{}{"propertyName": hubspotObject.lastModifiedProperty, "direction": "ASCENDING"}},
			"properties": hubspotObject.properties,
			"limit":      HUBSPOT_PAGE_LIMIT,
		}
		if after != "" {
			body["after"] = after
		}

		var page hubspotPage
		common.LogDebug(client.Config, "Searching HubSpot", hubspotObject.objectType, operator, lowerBoundMs, "after:", after)
		err := newRequest(client.HttpClient, client.ApiUrl+"/crm/v3/objects/"+hubspotObject.objectType+"/search", client.Connection.AccessToken).
			BodyJSON(body).
			ToJSON(&page).
			Fetch(ctx)
		if err != nil {
			return classifyRequestError(err, HUBSPOT_PROVIDER_NAME, "search "+hubspotObject.objectType)
		}
		onLiveness()

		for _, raw := range page.Results {
			lastModified := NewParser(raw).Time("properties." + hubspotObject.lastModifiedProperty)
			if lastModified != nil && lastModified.UnixMilli() > lastSeenMs {
				lastSeenMs = lastModified.UnixMilli()
			}
			err = emitResult(raw)
			if err != nil {
				return err
			}
		}
		fetchedInWindow += len(page.Results)

		after = page.nextAfter()
		if after == "" {
			return nil
		}

		// Restart the window from the last seen modification time; records sharing that millisecond are re-read and deduplicated downstream
		if fetchedInWindow+HUBSPOT_PAGE_LIMIT > HUBSPOT_SEARCH_MAX_RESULTS {
			if operator == "GTE" && lastSeenMs == lowerBoundMs {
				return common.NewSyncError(common.ErrorKindPermanentRemote, nil, "more than %d %s modified at %d", HUBSPOT_SEARCH_MAX_RESULTS, hubspotObject.objectType, lowerBoundMs)
			}
			lowerBoundMs = lastSeenMs
			operator = "GTE"
			after = ""
			fetchedInWindow = 0
		}
	}
}

func (client *HubspotClient) toRecord(hubspotObject hubspotObject, raw json.RawMessage) *common.CommonRecord {
	parser := NewParser(raw)
	record := &common.CommonRecord{
		RemoteId:        parser.Get("id").String(),
		RemoteCreatedAt: parser.Time("createdAt"),
		RemoteUpdatedAt: parser.Time("updatedAt"),
	}
	record.SetDeletion(parser.Get("archived").Bool(), parser.Time("archivedAt"), time.Now())
	record.ComputeLastModifiedAt()

	if hubspotObject.normalize != nil {
		record.Fields = hubspotObject.normalize(parser)
	}
	return record
}

// Owners have their own API without search; updatedAfter is applied client-side (exclusive)
func (client *HubspotClient) listOwners(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func(), emit EmitFunc) error {
	for _, archived := range []bool{false, true} {
		after := ""
		for {
			var page hubspotPage
			request := newRequest(client.HttpClient, client.ApiUrl+"/crm/v3/owners", client.Connection.AccessToken).
				Param("limit", strconv.Itoa(HUBSPOT_PAGE_LIMIT)).
				Param("archived", strconv.FormatBool(archived)).
				ToJSON(&page)
			if after != "" {
				request.Param("after", after)
			}

			err := request.Fetch(ctx)
			if err != nil {
				return classifyRequestError(err, HUBSPOT_PROVIDER_NAME, "list owners")
			}
			onLiveness()

			for _, raw := range page.Results {
				parser := NewParser(raw)
				record := &common.CommonRecord{
					RemoteId:        parser.Get("id").String(),
					RemoteCreatedAt: parser.Time("createdAt"),
					RemoteUpdatedAt: parser.Time("updatedAt"),
					Fields: map[string]interface{}{
						"name":      joinNonEmpty(" ", parser.String("firstName"), parser.String("lastName")),
						"email":     parser.String("email"),
						"is_active": !parser.Get("archived").Bool(),
					},
				}
				record.SetDeletion(parser.Get("archived").Bool(), nil, time.Now())
				record.ComputeLastModifiedAt()

				if updatedAfter != nil && record.RemoteUpdatedAt != nil && !record.RemoteUpdatedAt.After(*updatedAfter) {
					continue
				}

				err = mapAndEmit(object, mapper, record, raw, raw, emit)
				if err != nil {
					return err
				}
			}

			after = page.nextAfter()
			if after == "" {
				break
			}
		}
	}
	return nil
}

func hubspotPhoneNumbers(parser Parser) []PhoneNumber {
	return phoneNumbers(map[string]interface{}{
		"primary": parser.String("properties.phone"),
		"mobile":  parser.String("properties.mobilephone"),
		"fax":     parser.String("properties.fax"),
	})
}

func hubspotAddress(parser Parser, street2Path string) []Address {
	address := Address{
		Street1:     parser.String("properties.address"),
		City:        parser.String("properties.city"),
		State:       parser.String("properties.state"),
		PostalCode:  parser.String("properties.zip"),
		Country:     parser.String("properties.country"),
		AddressType: "primary",
	}
	if street2Path != "" {
		address.Street2 = parser.String(street2Path)
	}
	return addresses(address)
}

func normalizeHubspotCompany(parser Parser) map[string]interface{} {
	return map[string]interface{}{
		"name":                parser.String("properties.name"),
		"description":         parser.String("properties.description"),
		"industry":            parser.String("properties.industry"),
		"website":             parser.String("properties.website"),
		"number_of_employees": parser.Int("properties.numberofemployees"),
		"addresses":           hubspotAddress(parser, "properties.address2"),
		"phone_numbers":       hubspotPhoneNumbers(parser),
		"lifecycle_stage":     parser.String("properties.lifecyclestage"),
		"last_activity_at":    parser.TimeValue("properties.notes_last_updated"),
		"owner_id":            parser.String("properties.hubspot_owner_id"),
	}
}

func normalizeHubspotContact(parser Parser) map[string]interface{} {
	additionalEmails := []interface{}{}
	if additional, ok := parser.String("properties.hs_additional_emails").(string); ok {
		for _, email := range strings.Split(additional, ";") {
			additionalEmails = append(additionalEmails, strings.TrimSpace(email))
		}
	}

	return map[string]interface{}{
		"first_name":       parser.String("properties.firstname"),
		"last_name":        parser.String("properties.lastname"),
		"addresses":        hubspotAddress(parser, ""),
		"email_addresses":  emailAddresses("primary", append([]interface{}{parser.String("properties.email")}, additionalEmails...)...),
		"phone_numbers":    hubspotPhoneNumbers(parser),
		"last_activity_at": parser.TimeValue("properties.notes_last_updated"),
		"lifecycle_stage":  parser.String("properties.lifecyclestage"),
		"account_id":       parser.String("properties.associatedcompanyid"),
		"owner_id":         parser.String("properties.hubspot_owner_id"),
	}
}

func normalizeHubspotDeal(parser Parser) map[string]interface{} {
	status := "OPEN"
	if parser.Bool("properties.hs_is_closed_won") == true {
		status = "WON"
	} else if parser.Bool("properties.hs_is_closed") == true {
		status = "LOST"
	}

	var accountId interface{}
	companies := parser.Get("associations.companies.results").Array()
	if len(companies) > 0 {
		accountId = NewParserFromResult(companies[0]).String("id")
	}

	return map[string]interface{}{
		"name":             parser.String("properties.dealname"),
		"description":      parser.String("properties.description"),
		"amount":           parser.Int("properties.amount"),
		"stage":            parser.String("properties.dealstage"),
		"status":           status,
		"last_activity_at": parser.TimeValue("properties.notes_last_updated"),
		"pipeline":         parser.String("properties.pipeline"),
		"close_date":       parser.TimeValue("properties.closedate"),
		"account_id":       accountId,
		"owner_id":         parser.String("properties.hubspot_owner_id"),
	}
}
