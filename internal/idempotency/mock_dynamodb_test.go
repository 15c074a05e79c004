package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory mock for PutItem/GetItem/UpdateItem.
// Conditions are OR-ed clauses of attribute_not_exists(x), "a = :v" and "a < :v".
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	updateCalls int
	failNext    error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyOf(item map[string]types.AttributeValue) (string, error) {
	v, ok := item["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return v.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}
	k, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && !holds(m.table[k], *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item := m.table[k]
	if params.ConditionExpression != nil && !holds(item, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if item == nil {
		return nil, errors.New("item not found")
	}
	updated := map[string]types.AttributeValue{}
	for name, v := range item {
		updated[name] = v
	}
	for _, assignment := range strings.Split(strings.TrimPrefix(*params.UpdateExpression, "SET "), ", ") {
		parts := strings.SplitN(assignment, " = ", 2)
		updated[nameOf(parts[0], params.ExpressionAttributeNames)] = params.ExpressionAttributeValues[parts[1]]
	}
	m.table[k] = updated
	return &dyn.UpdateItemOutput{}, nil
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not used by the idempotency store")
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("not used by the idempotency store")
}

func nameOf(n string, names map[string]string) string {
	if strings.HasPrefix(n, "#") {
		return names[n]
	}
	return n
}

func holds(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, clause := range strings.Split(expr, " OR ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "attribute_not_exists(") {
			attr := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
			if _, ok := item[attr]; !ok {
				return true
			}
			continue
		}
		parts := strings.Fields(clause)
		got, ok := item[nameOf(parts[0], names)]
		if !ok {
			continue
		}
		want := values[parts[2]]
		switch parts[1] {
		case "=":
			g, gok := got.(*types.AttributeValueMemberS)
			w, wok := want.(*types.AttributeValueMemberS)
			if gok && wok && g.Value == w.Value {
				return true
			}
		case "<":
			g, gok := got.(*types.AttributeValueMemberN)
			w, wok := want.(*types.AttributeValueMemberN)
			if gok && wok {
				x, _ := strconv.ParseInt(g.Value, 10, 64)
				y, _ := strconv.ParseInt(w.Value, 10, 64)
				if x < y {
					return true
				}
			}
		}
	}
	return false
}
