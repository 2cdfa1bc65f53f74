package dynamo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

// fakeAPI is an in-memory table that understands the expressions Store sends.
type fakeAPI struct {
	mu       sync.Mutex
	rows     map[string]map[string]map[string]types.AttributeValue
	pageSize int
	exists   bool
	created  bool

	throttle   int // batches that leave their last request unprocessed
	batchSizes []int
	failPut    error
}

func newFake() *fakeAPI {
	return &fakeAPI{rows: make(map[string]map[string]map[string]types.AttributeValue), exists: true}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return nil, f.failPut
	}
	pk, sk := str(in.Item["pk"]), str(in.Item["sk"])
	if f.rows[pk] == nil {
		f.rows[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.rows[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows[str(in.Key["pk"])], str(in.Key["sk"]))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) sortedKeys(pk string) []string {
	keys := make([]string, 0, len(f.rows[pk]))
	for sk := range f.rows[pk] {
		keys = append(keys, sk)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.ExpressionAttributeValues[":pk"])
	prefix := str(in.ExpressionAttributeValues[":prefix"])
	after := str(in.ExclusiveStartKey["sk"])

	out := &dynamodb.QueryOutput{}
	for _, sk := range f.sortedKeys(pk) {
		if !strings.HasPrefix(sk, prefix) || (after != "" && sk <= after) {
			continue
		}
		if f.pageSize > 0 && len(out.Items) == f.pageSize {
			out.LastEvaluatedKey = key(pk, str(out.Items[len(out.Items)-1]["sk"]))
			break
		}
		out.Items = append(out.Items, f.rows[pk][sk])
	}
	return out, nil
}

func (f *fakeAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := str(in.ExpressionAttributeValues[":kind"])
	uid := str(in.ExpressionAttributeValues[":uid"])
	after := str(in.ExclusiveStartKey["pk"]) + "|" + str(in.ExclusiveStartKey["sk"])

	pks := make([]string, 0, len(f.rows))
	for pk := range f.rows {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	out := &dynamodb.ScanOutput{}
	examined := 0
	for _, pk := range pks {
		for _, sk := range f.sortedKeys(pk) {
			if in.ExclusiveStartKey != nil && pk+"|"+sk <= after {
				continue
			}
			if f.pageSize > 0 && examined == f.pageSize {
				return out, nil
			}
			examined++
			out.LastEvaluatedKey = key(pk, sk)
			row := f.rows[pk][sk]
			if str(row["kind"]) != kind {
				continue
			}
			shared, _ := row["shared_with"].(*types.AttributeValueMemberL)
			if shared == nil {
				continue
			}
			for _, v := range shared.Value {
				if str(v) == uid {
					out.Items = append(out.Items, row)
					break
				}
			}
		}
	}
	out.LastEvaluatedKey = nil
	return out, nil
}

func (f *fakeAPI) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		f.batchSizes = append(f.batchSizes, len(reqs))
		if len(reqs) > batchSize {
			return nil, errors.New("too many requests in batch")
		}
		for i, r := range reqs {
			if f.throttle > 0 && i == len(reqs)-1 {
				f.throttle--
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], r)
				continue
			}
			k := r.DeleteRequest.Key
			delete(f.rows[str(k["pk"])], str(k["sk"]))
		}
	}
	return out, nil
}

func (f *fakeAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if !f.exists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeAPI) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.exists = true
	f.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAPI) count(pk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[pk])
}

func newTestStore(f *fakeAPI) *Store {
	s := NewWithAPI(f, "", nil)
	s.sleep = func(time.Duration) {}
	return s
}

func saveListWithItems(t *testing.T, s *Store, userID string, l *models.List, names ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.SaveList(ctx, userID, l)
	if err != nil {
		t.Fatalf("SaveList: %v", err)
	}
	for _, n := range names {
		if _, err := s.SaveListItem(ctx, userID, id, &models.ListItem{Name: n, SyncMeta: models.SyncMeta{ModifiedAt: 5}}); err != nil {
			t.Fatalf("SaveListItem: %v", err)
		}
	}
	return id
}

func TestSaveAndGetLists(t *testing.T) {
	f := newFake()
	s := newTestStore(f)
	ctx := context.Background()

	if s.Table() != DefaultTable {
		t.Errorf("table = %q", s.Table())
	}

	id := saveListWithItems(t, s, "alice", &models.List{
		Name:       "groceries",
		Type:       models.ListTypeShopping,
		SharedWith: []string{"bob"},
		SyncMeta:   models.SyncMeta{LocalID: 7, ModifiedAt: 42, ChangeFlag: models.FlagNew},
	}, "milk", "eggs")

	lists, err := s.GetLists(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLists: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("lists = %d", len(lists))
	}
	l := lists[0]
	if l.RemoteID != id || l.Name != "groceries" || l.ModifiedAt != 42 || l.OwnerID != "alice" {
		t.Errorf("list = %+v", l)
	}
	if l.LocalID != 0 || l.ChangeFlag != models.FlagNone {
		t.Errorf("local state leaked to remote: %+v", l.SyncMeta)
	}
	if len(l.SharedWith) != 1 || l.SharedWith[0] != "bob" {
		t.Errorf("shared_with = %v", l.SharedWith)
	}
	if len(l.Items) != 2 {
		t.Fatalf("items = %d", len(l.Items))
	}
	for _, it := range l.Items {
		if it.RemoteID == "" || it.ListRemoteID != id || it.ModifiedAt != 5 {
			t.Errorf("item = %+v", it)
		}
	}

	if other, _ := s.GetLists(ctx, "bob"); len(other) != 0 {
		t.Errorf("bob sees %d lists in his own partition", len(other))
	}
}

func TestSaveListKeepsRemoteID(t *testing.T) {
	s := newTestStore(newFake())
	ctx := context.Background()

	id, _ := s.SaveList(ctx, "alice", &models.List{Name: "a"})
	again, err := s.SaveList(ctx, "alice", &models.List{Name: "b", SyncMeta: models.SyncMeta{RemoteID: id}})
	if err != nil || again != id {
		t.Fatalf("resave = %q, %v", again, err)
	}
	lists, _ := s.GetLists(ctx, "alice")
	if len(lists) != 1 || lists[0].Name != "b" {
		t.Errorf("lists = %+v", lists)
	}
}

func TestGetListsPaginates(t *testing.T) {
	f := newFake()
	f.pageSize = 2
	s := newTestStore(f)

	for i := 0; i < 3; i++ {
		saveListWithItems(t, s, "alice", &models.List{Name: "l"}, "a", "b")
	}
	lists, err := s.GetLists(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetLists: %v", err)
	}
	if len(lists) != 3 {
		t.Fatalf("lists = %d", len(lists))
	}
	for _, l := range lists {
		if len(l.Items) != 2 {
			t.Errorf("list %s items = %d", l.RemoteID, len(l.Items))
		}
	}
}

func TestSaveListItemRequiresList(t *testing.T) {
	s := newTestStore(newFake())
	_, err := s.SaveListItem(context.Background(), "alice", "", &models.ListItem{Name: "x"})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteListRemovesItemsOnly(t *testing.T) {
	f := newFake()
	s := newTestStore(f)
	ctx := context.Background()

	saveListWithItems(t, s, "alice", &models.List{Name: "a", SyncMeta: models.SyncMeta{RemoteID: "abc"}}, "x", "y")
	saveListWithItems(t, s, "alice", &models.List{Name: "b", SyncMeta: models.SyncMeta{RemoteID: "abcd"}}, "z")

	if err := s.DeleteList(ctx, "alice", "abc"); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	lists, _ := s.GetLists(ctx, "alice")
	if len(lists) != 1 || lists[0].RemoteID != "abcd" || len(lists[0].Items) != 1 {
		t.Errorf("remaining = %+v", lists)
	}

	// Deleting again is a no-op.
	if err := s.DeleteList(ctx, "alice", "abc"); err != nil {
		t.Errorf("second DeleteList: %v", err)
	}
}

func TestDeleteListBatches(t *testing.T) {
	f := newFake()
	s := newTestStore(f)

	names := make([]string, 59)
	for i := range names {
		names[i] = "item"
	}
	id := saveListWithItems(t, s, "alice", &models.List{Name: "big"}, names...)
	f.throttle = 2

	if err := s.DeleteList(context.Background(), "alice", id); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if n := f.count(userKey("alice")); n != 0 {
		t.Errorf("%d records left", n)
	}
	// 60 records: 25 (1 throttled), retry 1 (throttled), retry 1, 25, 10.
	want := []int{25, 1, 1, 25, 10}
	if len(f.batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", f.batchSizes, want)
	}
	for i := range want {
		if f.batchSizes[i] != want[i] {
			t.Errorf("batch sizes = %v, want %v", f.batchSizes, want)
			break
		}
	}
}

func TestDeleteListGivesUpOnThrottling(t *testing.T) {
	f := newFake()
	s := newTestStore(f)
	id := saveListWithItems(t, s, "alice", &models.List{Name: "a"})
	f.throttle = 100

	err := s.DeleteList(context.Background(), "alice", id)
	if !errors.Is(err, ErrUnprocessed) {
		t.Fatalf("err = %v", err)
	}
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Errorf("expected StorageError, got %T", err)
	}
}

func TestDeleteListItem(t *testing.T) {
	s := newTestStore(newFake())
	ctx := context.Background()
	id := saveListWithItems(t, s, "alice", &models.List{Name: "a"}, "x", "y")

	lists, _ := s.GetLists(ctx, "alice")
	victim := lists[0].Items[0].RemoteID
	if err := s.DeleteListItem(ctx, "alice", id, victim); err != nil {
		t.Fatalf("DeleteListItem: %v", err)
	}
	if err := s.DeleteListItem(ctx, "alice", id, victim); err != nil {
		t.Errorf("repeat DeleteListItem: %v", err)
	}
	lists, _ = s.GetLists(ctx, "alice")
	if len(lists[0].Items) != 1 || lists[0].Items[0].RemoteID == victim {
		t.Errorf("items = %+v", lists[0].Items)
	}
}

func TestGetSharedLists(t *testing.T) {
	f := newFake()
	f.pageSize = 3
	s := newTestStore(f)
	ctx := context.Background()

	shared := saveListWithItems(t, s, "bob", &models.List{Name: "party", SharedWith: []string{"alice", "carol"}}, "chips", "dip")
	saveListWithItems(t, s, "bob", &models.List{Name: "private"}, "secret")
	saveListWithItems(t, s, "carol", &models.List{Name: "other", SharedWith: []string{"dave"}})
	saveListWithItems(t, s, "alice", &models.List{Name: "mine", SharedWith: []string{"alice"}})

	lists, err := s.GetSharedLists(ctx, "alice")
	if err != nil {
		t.Fatalf("GetSharedLists: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("shared lists = %+v", lists)
	}
	l := lists[0]
	if l.RemoteID != shared || l.OwnerID != "bob" || len(l.Items) != 2 {
		t.Errorf("shared list = %+v", l)
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	f := newFake()
	boom := errors.New("throughput exceeded")
	f.failPut = boom
	s := newTestStore(f)

	_, err := s.SaveList(context.Background(), "alice", &models.List{Name: "a"})
	var se *store.StorageError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnsureTable(t *testing.T) {
	f := newFake()
	f.exists = false
	s := newTestStore(f)

	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if !f.created {
		t.Fatal("table not created")
	}

	f.created = false
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if f.created {
		t.Error("existing table recreated")
	}
}
