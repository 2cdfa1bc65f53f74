// Package dynamo stores lists in a single DynamoDB table.
//
// Every user owns one partition (pk = USER#<uid>). A list lives at
// sk = LIST#<listID> and each of its items at sk = LIST#<listID>#ITEM#<itemID>,
// so one Query over the partition returns the whole hierarchy and a
// begins_with range covers a list with its items.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

// DefaultTable is used when Options.Table is empty.
const DefaultTable = "lists"

const (
	batchSize      = 25 // BatchWriteItem limit
	maxBatchRetry  = 5
	retryBaseDelay = 50 * time.Millisecond
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Options configures New.
type Options struct {
	Table  string
	Region string
	// Endpoint overrides the service endpoint, e.g. a local DynamoDB.
	// AWS_ENDPOINT is used when empty.
	Endpoint string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Store implements store.RemoteStore on DynamoDB.
type Store struct {
	api   API
	table string
	log   *slog.Logger
	sleep func(time.Duration)
}

var _ store.RemoteStore = (*Store)(nil)

// New loads the default AWS configuration and returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
		},
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithHTTPClient(httpClient)}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT")
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	return NewWithAPI(dynamodb.NewFromConfig(cfg), opts.Table, opts.Logger), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, table string, log *slog.Logger) *Store {
	if table == "" {
		table = DefaultTable
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{api: api, table: table, log: log, sleep: time.Sleep}
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// record is the stored shape of both lists and items.
type record struct {
	PK         string   `dynamodbav:"pk"`
	SK         string   `dynamodbav:"sk"`
	Kind       string   `dynamodbav:"kind"`
	ID         string   `dynamodbav:"id"`
	ListID     string   `dynamodbav:"list_id,omitempty"`
	Name       string   `dynamodbav:"name"`
	Desc       string   `dynamodbav:"description,omitempty"`
	Type       string   `dynamodbav:"type,omitempty"`
	Subtype    string   `dynamodbav:"subtype,omitempty"`
	Status     string   `dynamodbav:"status,omitempty"`
	Notes      string   `dynamodbav:"notes,omitempty"`
	Priority   float64  `dynamodbav:"priority"`
	ModifiedAt int64    `dynamodbav:"modified_at"`
	OwnerID    string   `dynamodbav:"owner_id,omitempty"`
	SharedWith []string `dynamodbav:"shared_with,omitempty"`
}

func userKey(userID string) string { return "USER#" + userID }
func listKey(listID string) string { return "LIST#" + listID }
func itemKey(listID, itemID string) string {
	return listKey(listID) + "#ITEM#" + itemID
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func listRecord(userID, id string, l *models.List) record {
	owner := l.OwnerID
	if owner == "" {
		owner = userID
	}
	return record{
		PK:         userKey(userID),
		SK:         listKey(id),
		Kind:       string(models.KindList),
		ID:         id,
		Name:       l.Name,
		Desc:       l.Description,
		Type:       string(l.Type),
		Subtype:    l.Subtype,
		Priority:   l.Priority,
		ModifiedAt: l.ModifiedAt,
		OwnerID:    owner,
		SharedWith: l.SharedWith,
	}
}

func itemRecord(userID, listID, id string, it *models.ListItem) record {
	owner := it.OwnerID
	if owner == "" {
		owner = userID
	}
	return record{
		PK:         userKey(userID),
		SK:         itemKey(listID, id),
		Kind:       string(models.KindItem),
		ID:         id,
		ListID:     listID,
		Name:       it.Name,
		Status:     string(it.Status),
		Notes:      it.Notes,
		Priority:   it.Priority,
		ModifiedAt: it.ModifiedAt,
		OwnerID:    owner,
	}
}

func (r record) list() *models.List {
	return &models.List{
		SyncMeta:    models.SyncMeta{RemoteID: r.ID, ModifiedAt: r.ModifiedAt, OwnerID: r.OwnerID},
		Name:        r.Name,
		Description: r.Desc,
		Type:        models.ListType(r.Type),
		Subtype:     r.Subtype,
		Priority:    r.Priority,
		SharedWith:  r.SharedWith,
	}
}

func (r record) item() *models.ListItem {
	return &models.ListItem{
		SyncMeta:     models.SyncMeta{RemoteID: r.ID, ModifiedAt: r.ModifiedAt, OwnerID: r.OwnerID},
		ListRemoteID: r.ListID,
		Name:         r.Name,
		Status:       models.ItemStatus(r.Status),
		Notes:        r.Notes,
		Priority:     r.Priority,
	}
}

// queryPrefix returns every record in pk whose sort key starts with prefix.
func (s *Store) queryPrefix(ctx context.Context, pk, prefix string) ([]record, error) {
	var out []record
	var lastKey map[string]types.AttributeValue
	for {
		page, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pk},
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, err
		}
		var recs []record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshal records: %w", err)
		}
		out = append(out, recs...)
		if page.LastEvaluatedKey == nil {
			return out, nil
		}
		lastKey = page.LastEvaluatedKey
	}
}

// assemble rebuilds lists with nested items, ordered by sort key.
func assemble(recs []record) []*models.List {
	sort.Slice(recs, func(i, j int) bool { return recs[i].SK < recs[j].SK })

	var lists []*models.List
	byID := make(map[string]*models.List)
	var items []record
	for _, r := range recs {
		switch models.Kind(r.Kind) {
		case models.KindList:
			l := r.list()
			lists = append(lists, l)
			byID[r.ID] = l
		case models.KindItem:
			items = append(items, r)
		}
	}
	for _, r := range items {
		if l, ok := byID[r.ListID]; ok {
			l.Items = append(l.Items, r.item())
		}
	}
	return lists
}

// GetLists returns the user's lists with their items.
func (s *Store) GetLists(ctx context.Context, userID string) ([]*models.List, error) {
	recs, err := s.queryPrefix(ctx, userKey(userID), "LIST#")
	if err != nil {
		return nil, store.Wrap("dynamo get lists", err)
	}
	return assemble(recs), nil
}

func (s *Store) put(ctx context.Context, r record) error {
	av, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.Kind, err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	return err
}

// SaveList upserts the list record. Items are written separately.
func (s *Store) SaveList(ctx context.Context, userID string, list *models.List) (string, error) {
	id := list.RemoteID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.put(ctx, listRecord(userID, id, list)); err != nil {
		return "", store.Wrap("dynamo save list", err)
	}
	s.log.Debug("dynamo: saved list", "user", userID, "list", id)
	return id, nil
}

// SaveListItem upserts one item under listRemoteID.
func (s *Store) SaveListItem(ctx context.Context, userID, listRemoteID string, item *models.ListItem) (string, error) {
	if listRemoteID == "" {
		return "", &store.ValidationError{Kind: models.KindItem, Msg: "list item must have a remote list id"}
	}
	id := item.RemoteID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.put(ctx, itemRecord(userID, listRemoteID, id, item)); err != nil {
		return "", store.Wrap("dynamo save list item", err)
	}
	return id, nil
}

// DeleteList removes the list record and every item under it.
func (s *Store) DeleteList(ctx context.Context, userID, listRemoteID string) error {
	pk := userKey(userID)
	lk := listKey(listRemoteID)
	recs, err := s.queryPrefix(ctx, pk, lk)
	if err != nil {
		return store.Wrap("dynamo delete list", err)
	}

	keys := make([]map[string]types.AttributeValue, 0, len(recs))
	for _, r := range recs {
		// begins_with also matches ids sharing the prefix.
		if r.SK != lk && !strings.HasPrefix(r.SK, lk+"#") {
			continue
		}
		keys = append(keys, key(pk, r.SK))
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return store.Wrap("dynamo delete list", err)
	}
	s.log.Debug("dynamo: deleted list", "user", userID, "list", listRemoteID, "records", len(keys))
	return nil
}

// ErrUnprocessed is returned when DynamoDB keeps throttling a batch.
var ErrUnprocessed = errors.New("unprocessed items remain")

func (s *Store) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}

		pending := map[string][]types.WriteRequest{s.table: reqs}
		for attempt := 0; len(pending[s.table]) > 0; attempt++ {
			if attempt > 0 {
				if attempt > maxBatchRetry {
					return fmt.Errorf("%w: %d after %d attempts", ErrUnprocessed, len(pending[s.table]), attempt)
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				s.sleep(retryBaseDelay << (attempt - 1))
			}
			out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// DeleteListItem removes one item. Missing items are ignored.
func (s *Store) DeleteListItem(ctx context.Context, userID, listRemoteID, itemRemoteID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(userKey(userID), itemKey(listRemoteID, itemRemoteID)),
	})
	return store.Wrap("dynamo delete list item", err)
}

// GetSharedLists returns lists of other users whose shared_with names userID.
func (s *Store) GetSharedLists(ctx context.Context, userID string) ([]*models.List, error) {
	var heads []record
	var lastKey map[string]types.AttributeValue
	for {
		page, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("kind = :kind AND contains(shared_with, :uid)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":kind": &types.AttributeValueMemberS{Value: string(models.KindList)},
				":uid":  &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, store.Wrap("dynamo get shared lists", err)
		}
		var recs []record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, store.Wrap("dynamo get shared lists", fmt.Errorf("unmarshal records: %w", err))
		}
		heads = append(heads, recs...)
		if page.LastEvaluatedKey == nil {
			break
		}
		lastKey = page.LastEvaluatedKey
	}

	sort.Slice(heads, func(i, j int) bool {
		if heads[i].PK != heads[j].PK {
			return heads[i].PK < heads[j].PK
		}
		return heads[i].SK < heads[j].SK
	})

	var lists []*models.List
	for _, h := range heads {
		if h.PK == userKey(userID) {
			continue
		}
		recs, err := s.queryPrefix(ctx, h.PK, h.SK)
		if err != nil {
			return nil, store.Wrap("dynamo get shared lists", err)
		}
		for _, l := range assemble(recs) {
			if l.RemoteID == h.ID {
				lists = append(lists, l)
			}
		}
	}
	return lists, nil
}

// EnsureTable creates the table with on-demand billing if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return store.Wrap("dynamo describe table", err)
	}

	_, err = s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		return store.Wrap("dynamo create table", err)
	}
	s.log.Info("dynamo: created table", "table", s.table)
	return nil
}
