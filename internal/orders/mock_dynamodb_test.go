package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo stores items per table in a nested map: table -> pk -> item.
// It understands the small expression grammar the store emits: SET lists,
// AND/OR of comparisons and attribute_exists/attribute_not_exists.
type mockDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int // Scan page size; 0 returns everything in one page

	scanCalls   int
	updateCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	v, ok := item["order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("no order_id in item")
	}
	return v.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	if params.ConditionExpression != nil && !evalCondition(tbl[pk], *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	tbl[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	item := tbl[pk]
	if params.ConditionExpression != nil && !evalCondition(item, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if item == nil {
		item = copyItem(params.Key)
	} else {
		item = copyItem(item)
	}

	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assignment, " = ", 2)
		if len(parts) != 2 {
			return nil, errors.New("unsupported update expression: " + assignment)
		}
		item[resolveName(parts[0], params.ExpressionAttributeNames)] = params.ExpressionAttributeValues[parts[1]]
	}
	tbl[pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// first pass: every condition must hold
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			return nil, errors.New("mock supports Put only")
		}
		pk, err := pkOf(p.Item)
		if err != nil {
			return nil, err
		}
		existing := m.table(*p.TableName)[pk]
		if p.ConditionExpression != nil && !evalCondition(existing, *p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
			return nil, &types.TransactionCanceledException{}
		}
	}
	// second pass: apply
	for _, it := range params.TransactItems {
		pk, _ := pkOf(it.Put.Item)
		m.table(*it.Put.TableName)[pk] = copyItem(it.Put.Item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// Scan applies the filter per page, after the page limit, as DynamoDB does.
func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	tbl := m.table(*params.TableName)
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		last, _ := pkOf(params.ExclusiveStartKey)
		start = sort.SearchStrings(keys, last) + 1
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}

	out := &dyn.ScanOutput{}
	for _, k := range keys[start:end] {
		item := tbl[k]
		if params.FilterExpression == nil || evalCondition(item, *params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: keys[end-1]},
		}
	}
	return out, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		return names[name]
	}
	return name
}

func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, alt := range strings.Split(expr, " OR ") {
		ok := true
		for _, clause := range strings.Split(alt, " AND ") {
			if !evalClause(item, strings.TrimSpace(clause), names, values) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func evalClause(item map[string]types.AttributeValue, clause string, names map[string]string, values map[string]types.AttributeValue) bool {
	if strings.HasPrefix(clause, "attribute_exists(") {
		_, ok := item[resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)]
		return ok
	}
	if strings.HasPrefix(clause, "attribute_not_exists(") {
		_, ok := item[resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)]
		return !ok
	}
	parts := strings.Fields(clause)
	if len(parts) != 3 {
		return false
	}
	got, ok := item[resolveName(parts[0], names)]
	if !ok {
		return false
	}
	want := values[parts[2]]
	c, comparable := compareAV(got, want)
	if !comparable {
		return false
	}
	switch parts[1] {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	}
	return false
}

func compareAV(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, _ := strconv.ParseFloat(av.Value, 64)
		y, _ := strconv.ParseFloat(bv.Value, 64)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}
