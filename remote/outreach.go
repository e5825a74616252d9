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
	OUTREACH_PROVIDER_NAME = "outreach"
	OUTREACH_API_URL       = "https://api.outreach.io/api/v2"
	OUTREACH_PAGE_SIZE     = 100
)

type outreachResource struct {
	resourceType string
	normalize    func(parser Parser) map[string]interface{}
}

var outreachCommonResources = map[string]outreachResource{
	"contact":        {resourceType: "prospects", normalize: normalizeOutreachProspect},
	"user":           {resourceType: "users", normalize: normalizeOutreachUser},
	"sequence":       {resourceType: "sequences", normalize: normalizeOutreachSequence},
	"mailbox":        {resourceType: "mailboxes", normalize: normalizeOutreachMailbox},
	"sequence_state": {resourceType: "sequenceStates", normalize: normalizeOutreachSequenceState},
}

// OutreachClient syncs engagement objects through the JSON:API endpoints.
// The updatedAt range filter is inclusive of updatedAfter.
type OutreachClient struct {
	Config     *common.CommonConfig
	Connection common.Connection
	ApiUrl     string
	HttpClient *http.Client
}

func NewOutreachClient(config *common.CommonConfig, connection common.Connection) (Client, error) {
	apiUrl := OUTREACH_API_URL
	if connection.ApiUrl != "" {
		apiUrl = strings.TrimSuffix(connection.ApiUrl, "/")
	}

	return &OutreachClient{
		Config:     config,
		Connection: connection,
		ApiUrl:     apiUrl,
		HttpClient: newHttpClient(),
	}, nil
}

func (outreach *OutreachClient) ProviderName() string {
	return OUTREACH_PROVIDER_NAME
}

func (outreach *OutreachClient) ListRecords(ctx context.Context, object common.ObjectDescriptor, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func()) (RecordStream, error) {
	if object.Category != common.CategoryEngagement {
		return nil, unsupportedObjectError(OUTREACH_PROVIDER_NAME, object)
	}
	if onLiveness == nil {
		onLiveness = func() {}
	}

	var resource outreachResource
	switch object.ObjectKind {
	case common.ObjectKindCommon:
		commonResource, ok := outreachCommonResources[object.ObjectName]
		if !ok {
			return nil, unsupportedObjectError(OUTREACH_PROVIDER_NAME, object)
		}
		resource = commonResource
	case common.ObjectKindStandard:
		resource = outreachResource{resourceType: object.ObjectName}
	default:
		return nil, unsupportedObjectError(OUTREACH_PROVIDER_NAME, object)
	}

	produce := func(ctx context.Context, emit EmitFunc) error {
		return outreach.listResources(ctx, object, resource, mapper, updatedAfter, onLiveness, emit)
	}
	return NewRecordStream(ctx, outreach.Config, common.DEFAULT_CAPPED_BUFFER_SIZE, produce), nil
}

type outreachPage struct {
	Data  []json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

func (outreach *OutreachClient) listResources(ctx context.Context, object common.ObjectDescriptor, resource outreachResource, mapper *RecordMapper, updatedAfter *time.Time, onLiveness func(), emit EmitFunc) error {
	nextUrl := ""
	for {
		var page outreachPage
		url := nextUrl
		if nextUrl == "" {
			url = outreach.ApiUrl + "/" + resource.resourceType
		}
		request := newRequest(outreach.HttpClient, url, outreach.Connection.AccessToken)
		// The next link already carries the page size and filters
		if nextUrl == "" {
			request.
				Param("page[size]", strconv.Itoa(OUTREACH_PAGE_SIZE)).
				Param("sort", "updatedAt")
			if updatedAfter != nil {
				request.Param("filter[updatedAt]", updatedAfter.UTC().Format(time.RFC3339Nano)+"..inf")
			}
		}

		common.LogDebug(outreach.Config, "Listing Outreach", url)
		err := request.ToJSON(&page).Fetch(ctx)
		if err != nil {
			return classifyRequestError(err, OUTREACH_PROVIDER_NAME, "list "+resource.resourceType)
		}
		onLiveness()

		for _, raw := range page.Data {
			parser := NewParser(raw)
			record := &common.CommonRecord{
				RemoteId:        parser.Get("id").String(),
				RemoteCreatedAt: parser.Time("attributes.createdAt"),
				RemoteUpdatedAt: parser.Time("attributes.updatedAt"),
			}
			record.SetDeletion(false, nil, time.Now())
			record.ComputeLastModifiedAt()
			if resource.normalize != nil {
				record.Fields = resource.normalize(parser)
			}

			err = mapAndEmit(object, mapper, record, parser.Raw("attributes"), raw, emit)
			if err != nil {
				return err
			}
		}

		if page.Links.Next == "" {
			return nil
		}
		nextUrl = page.Links.Next
	}
}

func outreachRelationshipId(parser Parser, relationship string) interface{} {
	return parser.String("relationships." + relationship + ".data.id")
}

func normalizeOutreachProspect(parser Parser) map[string]interface{} {
	phones := map[string]interface{}{
		"primary": firstString(parser, "attributes.workPhones"),
		"mobile":  firstString(parser, "attributes.mobilePhones"),
		"other":   firstString(parser, "attributes.homePhones"),
	}

	return map[string]interface{}{
		"first_name": parser.String("attributes.firstName"),
		"last_name":  parser.String("attributes.lastName"),
		"job_title":  parser.String("attributes.title"),
		"address": Address{
			Street1:     firstString(parser, "attributes.addressStreet"),
			Street2:     parser.String("attributes.addressStreet2"),
			City:        parser.String("attributes.addressCity"),
			State:       parser.String("attributes.addressState"),
			PostalCode:  parser.String("attributes.addressZip"),
			Country:     parser.String("attributes.addressCountry"),
			AddressType: "primary",
		},
		"email_addresses": emailAddresses("primary", allStrings(parser, "attributes.emails")...),
		"phone_numbers":   phoneNumbers(phones),
		"open_count":      parser.Int("attributes.openCount"),
		"click_count":     parser.Int("attributes.clickCount"),
		"reply_count":     parser.Int("attributes.replyCount"),
		"bounced_count":   parser.Int("attributes.bouncedCount"),
		"owner_id":        outreachRelationshipId(parser, "owner"),
	}
}

func normalizeOutreachUser(parser Parser) map[string]interface{} {
	return map[string]interface{}{
		"first_name": parser.String("attributes.firstName"),
		"last_name":  parser.String("attributes.lastName"),
		"email":      parser.String("attributes.email"),
		"is_active":  parser.Bool("attributes.locked") != true,
	}
}

func normalizeOutreachSequence(parser Parser) map[string]interface{} {
	return map[string]interface{}{
		"is_enabled":     parser.Bool("attributes.enabled"),
		"name":           parser.String("attributes.name"),
		"tags":           parser.Strings("attributes.tags"),
		"num_steps":      parser.Int("attributes.sequenceStepCount"),
		"schedule_count": parser.Int("attributes.scheduleCount"),
		"open_count":     parser.Int("attributes.openCount"),
		"opt_out_count":  parser.Int("attributes.optOutCount"),
		"reply_count":    parser.Int("attributes.replyCount"),
		"click_count":    parser.Int("attributes.clickCount"),
		"owner_id":       outreachRelationshipId(parser, "owner"),
	}
}

func normalizeOutreachMailbox(parser Parser) map[string]interface{} {
	return map[string]interface{}{
		"email":   parser.String("attributes.email"),
		"user_id": outreachRelationshipId(parser, "user"),
	}
}

func normalizeOutreachSequenceState(parser Parser) map[string]interface{} {
	return map[string]interface{}{
		"state":       parser.String("attributes.state"),
		"mailbox_id":  outreachRelationshipId(parser, "mailbox"),
		"sequence_id": outreachRelationshipId(parser, "sequence"),
		"contact_id":  outreachRelationshipId(parser, "prospect"),
	}
}
