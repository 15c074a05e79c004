package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/grupo-shop/orderflow/internal/aws"
)

const (
	entityOrder  = "order"
	entityNumber = "order_number"
	numberPrefix = "number#"

	maxNumberAttempts = 5
)

// ErrNumberExhausted is returned when no unique order number could be allocated.
var ErrNumberExhausted = errors.New("could not allocate a unique order number")

// Store encapsulates operations on the orders table. Orders and their
// order-number guard items share the table; guard items are keyed
// "number#<order_number>" and point back at the order id.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	newID     func() string
	newNumber func(time.Time) string
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
		newNumber: NewOrderNumber,
	}
}

// Create persists a new order together with its order-number guard in one
// transaction. ID, OrderNumber, timestamps and an empty Status are filled in
// here; the caller's value is updated in place.
func (s *Store) Create(ctx context.Context, o *Order) error {
	now := s.nowFunc().UTC().Truncate(time.Second)
	if o.ID == "" {
		o.ID = s.newID()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o.OrderNumber = s.newNumber(now)

		orderMap, err := attributevalue.MarshalMap(o)
		if err != nil {
			return fmt.Errorf("marshal order item: %w", err)
		}
		orderMap["entity"] = &types.AttributeValueMemberS{Value: entityOrder}

		guard := map[string]types.AttributeValue{
			"order_id":        &types.AttributeValueMemberS{Value: numberPrefix + o.OrderNumber},
			"entity":          &types.AttributeValueMemberS{Value: entityNumber},
			"target_order_id": &types.AttributeValueMemberS{Value: o.ID},
		}

		_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{
					Put: &types.Put{
						TableName:           &s.tableName,
						Item:                guard,
						ConditionExpression: awsString("attribute_not_exists(order_id)"),
					},
				},
				{
					Put: &types.Put{
						TableName:           &s.tableName,
						Item:                orderMap,
						ConditionExpression: awsString("attribute_not_exists(order_id)"),
					},
				},
			},
		})
		if err == nil {
			return nil
		}
		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return fmt.Errorf("transact write: %w", err)
		}
		// number collision: draw again
	}
	return ErrNumberExhausted
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	item, err := s.getItem(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if item == nil || entityOf(item) != entityOrder {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByNumber resolves an order through its number guard. Returns (nil, nil)
// if not found.
func (s *Store) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	if orderNumber == "" {
		return nil, nil
	}
	item, err := s.getItem(ctx, numberPrefix+orderNumber)
	if err != nil {
		return nil, err
	}
	if item == nil || entityOf(item) != entityNumber {
		return nil, nil
	}
	target, ok := item["target_order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, target.Value)
}

func (s *Store) getItem(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: pk},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// Update applies u to the order under u.Guard and returns the stored result.
// A guard that does not hold yields ErrConditionFailed; a missing order yields
// ErrNotFound.
func (s *Store) Update(ctx context.Context, orderID string, u Update) (*Order, error) {
	now := s.nowFunc().UTC()

	sets := []string{"updated_at = :updated_at"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
	set := func(attr, value string) {
		if value == "" {
			return
		}
		sets = append(sets, attr+" = :"+strings.TrimPrefix(attr, "#"))
		values[":"+strings.TrimPrefix(attr, "#")] = &types.AttributeValueMemberS{Value: value}
	}
	if u.Status != "" {
		names["#status"] = "status"
		set("#status", string(u.Status))
	}
	set("payment_status", string(u.PaymentStatus))
	set("gateway_order_id", u.GatewayOrderID)
	set("gateway_payment_id", u.GatewayPaymentID)
	set("gateway_signature", u.GatewaySignature)
	set("payment_method", u.PaymentMethod)
	set("failure_reason", u.FailureReason)
	if u.Lock {
		sets = append(sets, "payment_locked = :locked")
		values[":locked"] = &types.AttributeValueMemberBOOL{Value: true}
	}

	cond := "attribute_exists(order_id) AND entity = :entity"
	values[":entity"] = &types.AttributeValueMemberS{Value: entityOrder}
	switch u.Guard {
	case GuardNotPaid:
		cond += " AND payment_status <> :paid"
		values[":paid"] = &types.AttributeValueMemberS{Value: string(PaymentPaid)}
	case GuardPayable:
		cond += " AND payment_status <> :paid AND payment_locked = :unlocked"
		values[":paid"] = &types.AttributeValueMemberS{Value: string(PaymentPaid)}
		values[":unlocked"] = &types.AttributeValueMemberBOOL{Value: false}
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString(cond),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			existing, gerr := s.Get(ctx, orderID)
			if gerr != nil {
				return nil, gerr
			}
			if existing == nil {
				return nil, ErrNotFound
			}
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("update item: %w", err)
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List returns one page of orders, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, q ListQuery) (*Page, error) {
	filter := "entity = :entity"
	values := map[string]types.AttributeValue{
		":entity": &types.AttributeValueMemberS{Value: entityOrder},
	}
	var names map[string]string
	if q.Status != "" {
		filter += " AND #status = :status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(q.Status)}
		names = map[string]string{"#status": "status"}
	}

	all, err := s.scan(ctx, filter, names, values)
	if err != nil {
		return nil, err
	}
	return NewPage(all, q), nil
}

// ListExpired returns unpaid payment_pending orders created before cutoff.
func (s *Store) ListExpired(ctx context.Context, cutoff time.Time) ([]Order, error) {
	filter := "entity = :entity AND #status = :status AND payment_status = :pending AND created_at < :cutoff"
	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":entity":  &types.AttributeValueMemberS{Value: entityOrder},
		":status":  &types.AttributeValueMemberS{Value: string(StatusPaymentPending)},
		":pending": &types.AttributeValueMemberS{Value: string(PaymentPending)},
		":cutoff":  &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.Unix(), 10)},
	}
	return s.scan(ctx, filter, names, values)
}

// scan walks every page of a filtered Scan and sorts the result newest first.
func (s *Store) scan(ctx context.Context, filter string, names map[string]string, values map[string]types.AttributeValue) ([]Order, error) {
	var (
		result   []Order
		startKey map[string]types.AttributeValue
	)
	for {
		input := &dyn.ScanInput{
			TableName:                 &s.tableName,
			FilterExpression:          awsString(filter),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		}
		if len(names) > 0 {
			input.ExpressionAttributeNames = names
		}
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func entityOf(item map[string]types.AttributeValue) string {
	if v, ok := item["entity"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
