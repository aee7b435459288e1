// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
)

// RESTConfig Firestore REST 形态的文档服务
type RESTConfig struct {
	BaseURL   string // 如 https://firestore.googleapis.com/v1
	ProjectID string
	Database  string // 默认 (default)
	Token     string // Bearer token，可为空
	Timeout   time.Duration
}

type restStore struct {
	client *resty.Client
	root   string // projects/{p}/databases/{d}/documents
}

// NewRESTStore 创建基于 HTTP 的文档存储；仅支持 poll，不支持 Listen
func NewRESTStore(cfg RESTConfig) (Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "rest store: project id 不能为空")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://firestore.googleapis.com/v1"
	}
	if cfg.Database == "" {
		cfg.Database = "(default)"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &restStore{
		client: client,
		root:   fmt.Sprintf("/projects/%s/databases/%s/documents", cfg.ProjectID, cfg.Database),
	}, nil
}

// restValue Firestore 字段值（仅用到的几种类型）
type restValue struct {
	StringValue    *string  `json:"stringValue,omitempty"`
	TimestampValue *string  `json:"timestampValue,omitempty"`
	IntegerValue   *string  `json:"integerValue,omitempty"`
	DoubleValue    *float64 `json:"doubleValue,omitempty"`
	BooleanValue   *bool    `json:"booleanValue,omitempty"`
	NullValue      *string  `json:"nullValue,omitempty"`
}

type restDocument struct {
	Name       string               `json:"name,omitempty"`
	Fields     map[string]restValue `json:"fields"`
	UpdateTime string               `json:"updateTime,omitempty"`
}

type runQueryResult struct {
	Document *restDocument `json:"document,omitempty"`
	ReadTime string        `json:"readTime,omitempty"`
}

type restError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func encodeValue(v interface{}) restValue {
	switch t := v.(type) {
	case nil:
		null := "NULL_VALUE"
		return restValue{NullValue: &null}
	case string:
		return restValue{StringValue: &t}
	case time.Time:
		s := t.UTC().Format(time.RFC3339Nano)
		return restValue{TimestampValue: &s}
	case *time.Time:
		if t == nil {
			return encodeValue(nil)
		}
		return encodeValue(*t)
	case int:
		s := strconv.Itoa(t)
		return restValue{IntegerValue: &s}
	case int64:
		s := strconv.FormatInt(t, 10)
		return restValue{IntegerValue: &s}
	case float64:
		return restValue{DoubleValue: &t}
	case bool:
		return restValue{BooleanValue: &t}
	default:
		s := fmt.Sprint(t)
		return restValue{StringValue: &s}
	}
}

func decodeValue(v restValue) interface{} {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.TimestampValue != nil:
		if t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue); err == nil {
			return t
		}
		return *v.TimestampValue
	case v.IntegerValue != nil:
		if n, err := strconv.ParseInt(*v.IntegerValue, 10, 64); err == nil {
			return n
		}
		return *v.IntegerValue
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BooleanValue != nil:
		return *v.BooleanValue
	default:
		return nil
	}
}

func encodeFields(fields map[string]interface{}) map[string]restValue {
	out := make(map[string]restValue, len(fields))
	for k, v := range fields {
		out[k] = encodeValue(v)
	}
	return out
}

func decodeFields(fields map[string]restValue) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = decodeValue(v)
	}
	return out
}

func statusError(resp *resty.Response, op string) error {
	var re restError
	msg := resp.String()
	if err := json.Unmarshal(resp.Body(), &re); err == nil && re.Error.Message != "" {
		msg = re.Error.Status + ": " + re.Error.Message
	}
	base := errors.ErrUnavailable
	switch resp.StatusCode() {
	case http.StatusNotFound:
		base = errors.ErrNotFound
	case http.StatusBadRequest:
		base = errors.ErrInvalidArg
	}
	return errors.Wrapf(base, "%s: HTTP %d: %s", op, resp.StatusCode(), msg)
}

func (s *restStore) Latest(ctx context.Context, collection string) (*Document, error) {
	body := map[string]interface{}{
		"structuredQuery": map[string]interface{}{
			"select": map[string]interface{}{
				"fields": []map[string]string{
					{"fieldPath": record.FieldURL},
					{"fieldPath": record.FieldCreatedAt},
					{"fieldPath": record.FieldExpiresAt},
				},
			},
			"from": []map[string]string{{"collectionId": collection}},
			"orderBy": []map[string]interface{}{{
				"field":     map[string]string{"fieldPath": record.FieldCreatedAt},
				"direction": "DESCENDING",
			}},
			"limit": 1,
		},
	}
	var out []runQueryResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(s.root + ":runQuery")
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp, "runQuery")
	}
	// 不依赖响应的 Content-Type；无法解析的响应按拉取失败处理，而不是当作空集合
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrapf(errors.ErrUnavailable, "runQuery: 响应无法解析: %v", err)
	}
	for _, r := range out {
		if r.Document == nil {
			continue
		}
		// 只返回字段值
		return &Document{Fields: decodeFields(r.Document.Fields), UpdateTime: parseTime(r.Document.UpdateTime)}, nil
	}
	return nil, nil
}

func (s *restStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if id == "" {
		return errors.Wrap(errors.ErrInvalidArg, "update: empty document id")
	}
	q := url.Values{}
	for k := range fields {
		q.Add("updateMask.fieldPaths", k)
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q).
		SetBody(restDocument{Fields: encodeFields(fields)}).
		Patch(s.root + "/" + url.PathEscape(collection) + "/" + url.PathEscape(id))
	if err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError(resp, "patch")
	}
	return nil
}

func (s *restStore) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if v, ok := fields[record.FieldID].(string); ok && v != "" {
		id = v
	}
	payload := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k != record.FieldID {
			payload[k] = v
		}
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("documentId", id).
		SetBody(restDocument{Fields: encodeFields(payload)}).
		Post(s.root + "/" + url.PathEscape(collection))
	if err != nil {
		return "", errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", statusError(resp, "create")
	}
	return id, nil
}

func (s *restStore) Listen(ctx context.Context, collection string, target TargetID, resume ResumeToken) (Subscription, error) {
	return nil, ErrListenUnsupported
}

func (s *restStore) Close() error { return nil }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
