package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/matrimony-api/internal/domain"
)

const batchGetLimit = 100

// UserRepo provides typed DynamoDB operations for the users table.
// Ledger and astrology mutations are single conditional UpdateItem calls so
// concurrent requests on the same user never overwrite each other.
type UserRepo struct {
	client    API
	tableName string
}

func NewUserRepo(client API, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

// Create stores a new user. Nil lists are replaced with empty ones so later
// list_append updates always find a list attribute.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	normalizeLists(u)
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldUserID},
	})
	if _, failed := conditionFailed(err); failed {
		return fmt.Errorf("user already exists: %w", domain.ErrConflict)
	}
	return err
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, indexEmail, "email", email)
}

func (r *UserRepo) GetByMobile(ctx context.Context, mobile string) (*domain.User, error) {
	return r.queryGSI(ctx, indexMobile, "mobile", mobile)
}

func (r *UserRepo) GetByDisplayID(ctx context.Context, displayID string) (*domain.User, error) {
	return r.queryGSI(ctx, indexDisplayID, "display_id", displayID)
}

// GetMany loads the users with the given ids. Duplicate ids are collapsed and
// missing users are skipped; the result order is unspecified.
func (r *UserRepo) GetMany(ctx context.Context, userIDs []string) ([]domain.User, error) {
	seen := domain.NewIDSet()
	keys := make([]map[string]types.AttributeValue, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, strKey(fieldUserID, id))
	}

	var users []domain.User
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		pending := map[string]types.KeysAndAttributes{
			r.tableName: {Keys: keys[start:end]},
		}
		for attempt := 0; len(pending) > 0 && attempt < 5; attempt++ {
			out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, err
			}
			var batch []domain.User
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[r.tableName], &batch); err != nil {
				return nil, err
			}
			users = append(users, batch...)
			pending = out.UnprocessedKeys
		}
	}
	return users, nil
}

// Update applies a partial SET to an existing user.
func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldUserID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if _, failed := conditionFailed(err); failed {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
	})
	return err
}

// Count returns the number of users in the table.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Select:    types.SelectCount,
	})
	total := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(page.Count)
	}
	return total, nil
}

// ListVisible returns every user that has not hidden their profile.
// Discovery filters are applied by the caller.
func (r *UserRepo) ListVisible(ctx context.Context) ([]domain.User, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#h <> :t"),
		ExpressionAttributeNames: map[string]string{"#h": fieldIsHidden},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	var users []domain.User
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.User
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		users = append(users, batch...)
	}
	return users, nil
}

// ConsumeCredit appends targetID to a credit-bearing interest list (sent or
// viewed). It succeeds only when the target is absent and the stored version
// still equals version, so the balance check the caller made still holds.
// A lost race yields domain.ErrStaleWrite.
func (r *UserRepo) ConsumeCredit(ctx context.Context, userID, list, targetID string, version int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey(fieldUserID, userID),
		UpdateExpression: aws.String("SET #in.#l = list_append(#in.#l, :ids), #ver = #ver + :one, #upd = :now"),
		ConditionExpression: aws.String(
			"attribute_exists(#pk) AND NOT contains(#in.#l, :id) AND #ver = :v"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  fieldUserID,
			"#in":  fieldInterests,
			"#l":   list,
			"#ver": fieldVersion,
			"#upd": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ids": strList(targetID),
			":id":  &types.AttributeValueMemberS{Value: targetID},
			":v":   &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": nowAV(),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		if len(old) == 0 {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("interest list changed concurrently: %w", domain.ErrStaleWrite)
	}
	return err
}

// AppendInterest appends targetID to one of the user's interest lists. With
// unique set the append is skipped when the id is already present.
func (r *UserRepo) AppendInterest(ctx context.Context, userID, list, targetID string, unique bool) error {
	cond := "attribute_exists(#pk)"
	values := map[string]types.AttributeValue{
		":ids": strList(targetID),
		":now": nowAV(),
	}
	if unique {
		cond += " AND NOT contains(#in.#l, :id)"
		values[":id"] = &types.AttributeValueMemberS{Value: targetID}
	}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldUserID, userID),
		UpdateExpression:    aws.String("SET #in.#l = list_append(#in.#l, :ids), #upd = :now"),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#pk":  fieldUserID,
			"#in":  fieldInterests,
			"#l":   list,
			"#upd": fieldUpdatedAt,
		},
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		if len(old) == 0 {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil
	}
	return err
}

// CreditPurchase adds purchased credits and prepends the transaction in one
// update. The update is rejected with domain.ErrConflict when the order or
// payment id is already recorded for the user.
func (r *UserRepo) CreditPurchase(ctx context.Context, userID string, txn domain.Transaction) error {
	txnAV, err := attributevalue.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	names := map[string]string{
		"#pk":   fieldUserID,
		"#in":   fieldInterests,
		"#tot":  fieldTotal,
		"#txns": fieldTransactions,
		"#refs": fieldTxnRefs,
		"#upd":  fieldUpdatedAt,
	}
	values := map[string]types.AttributeValue{
		":n":     &types.AttributeValueMemberN{Value: strconv.Itoa(txn.NoOfInterest)},
		":txn":   &types.AttributeValueMemberL{Value: []types.AttributeValue{txnAV}},
		":refs":  strList(txn.TxnRefs()...),
		":empty": emptyList(),
		":now":   nowAV(),
	}
	cond := "attribute_exists(#pk)" + refConditions(txn, values)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
		UpdateExpression: aws.String("SET #in.#tot = #in.#tot + :n, " +
			"#txns = list_append(:txn, if_not_exists(#txns, :empty)), " +
			"#refs = list_append(if_not_exists(#refs, :empty), :refs), #upd = :now"),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return txnConditionErr(err)
}

// AddAstrology prepends a pending astrology entry together with the
// transaction that paid for it. A reused order or payment id yields
// domain.ErrConflict.
func (r *UserRepo) AddAstrology(ctx context.Context, userID string, entry domain.AstrologyEntry, txn domain.Transaction) error {
	entryAV, err := attributevalue.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal astrology entry: %w", err)
	}
	txnAV, err := attributevalue.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	values := map[string]types.AttributeValue{
		":entry": &types.AttributeValueMemberL{Value: []types.AttributeValue{entryAV}},
		":txn":   &types.AttributeValueMemberL{Value: []types.AttributeValue{txnAV}},
		":refs":  strList(txn.TxnRefs()...),
		":empty": emptyList(),
		":now":   nowAV(),
	}
	cond := "attribute_exists(#pk)" + refConditions(txn, values)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
		UpdateExpression: aws.String("SET #astro = list_append(:entry, if_not_exists(#astro, :empty)), " +
			"#txns = list_append(:txn, if_not_exists(#txns, :empty)), " +
			"#refs = list_append(if_not_exists(#refs, :empty), :refs), #upd = :now"),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#pk":    fieldUserID,
			"#astro": fieldAstrology,
			"#txns":  fieldTransactions,
			"#refs":  fieldTxnRefs,
			"#upd":   fieldUpdatedAt,
		},
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return txnConditionErr(err)
}

// CompleteAstrology marks the entry at index as completed, provided it is
// still the entry with the given uid and still pending. When the entry was
// completed by someone else the result is domain.ErrAlreadyCompleted; when the
// list shifted under the caller it is domain.ErrStaleWrite.
func (r *UserRepo) CompleteAstrology(ctx context.Context, userID string, index int, uid, response string, at time.Time) error {
	path := fmt.Sprintf("#astro[%d]", index)
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
		UpdateExpression: aws.String(fmt.Sprintf(
			"SET %[1]s.#st = :done, %[1]s.#resp = :resp, %[1]s.#cat = :at, #upd = :at", path)),
		ConditionExpression: aws.String(fmt.Sprintf("%[1]s.#uid = :uid AND %[1]s.#st = :pending", path)),
		ExpressionAttributeNames: map[string]string{
			"#astro": fieldAstrology,
			"#st":    fieldStatus,
			"#resp":  fieldAIResponse,
			"#cat":   fieldCompletedAt,
			"#uid":   fieldUID,
			"#upd":   fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":    &types.AttributeValueMemberS{Value: domain.AstrologyCompleted},
			":pending": &types.AttributeValueMemberS{Value: domain.AstrologyPending},
			":resp":    &types.AttributeValueMemberS{Value: response},
			":uid":     &types.AttributeValueMemberS{Value: uid},
			":at":      &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	old, failed := conditionFailed(err)
	if !failed {
		return err
	}
	if len(old) == 0 {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(old, &u); err != nil {
		return err
	}
	if index < len(u.Astrology) && u.Astrology[index].UID == uid {
		return fmt.Errorf("astrology request %s: %w", uid, domain.ErrAlreadyCompleted)
	}
	return fmt.Errorf("astrology list changed concurrently: %w", domain.ErrStaleWrite)
}

// HideProfile prepends targetID to the user's hidden list unless present.
func (r *UserRepo) HideProfile(ctx context.Context, userID, targetID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldUserID, userID),
		UpdateExpression:    aws.String("SET #hp = list_append(:ids, if_not_exists(#hp, :empty)), #upd = :now"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND NOT contains(#hp, :id)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  fieldUserID,
			"#hp":  fieldHideProfiles,
			"#upd": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ids":   strList(targetID),
			":id":    &types.AttributeValueMemberS{Value: targetID},
			":empty": emptyList(),
			":now":   nowAV(),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		if len(old) == 0 {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil
	}
	return err
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// refConditions appends NOT contains guards for each txn ref and registers
// their values.
func refConditions(txn domain.Transaction, values map[string]types.AttributeValue) string {
	cond := ""
	for i, ref := range txn.TxnRefs() {
		key := fmt.Sprintf(":ref%d", i)
		values[key] = &types.AttributeValueMemberS{Value: ref}
		cond += fmt.Sprintf(" AND NOT contains(#refs, %s)", key)
	}
	return cond
}

func txnConditionErr(err error) error {
	old, failed := conditionFailed(err)
	if !failed {
		return err
	}
	if len(old) == 0 {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return fmt.Errorf("transaction already recorded: %w", domain.ErrConflict)
}

func nowAV() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)}
}

func normalizeLists(u *domain.User) {
	in := &u.Interests
	for _, l := range []*[]string{&in.Sent, &in.Received, &in.Accepted, &in.Declined, &in.Viewed, &u.HideProfiles, &u.TxnRefs} {
		if *l == nil {
			*l = []string{}
		}
	}
	if u.Transactions == nil {
		u.Transactions = []domain.Transaction{}
	}
	if u.Astrology == nil {
		u.Astrology = []domain.AstrologyEntry{}
	}
	if u.Images == nil {
		u.Images = []domain.Image{}
	}
}
