package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/stagecal/stagecal/internal/errors"
)

// Task is a record of the Tasks module.
type Task struct {
	Subject     string  `json:"Subject"`
	DueDate     string  `json:"Due_Date"`
	Description string  `json:"Description"`
	Priority    string  `json:"Priority,omitempty"`
	Status      string  `json:"Status,omitempty"`
	WhatID      *Lookup `json:"What_Id,omitempty"`
	SEModule    string  `json:"$se_module,omitempty"`
}

type taskResult struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details"`
}

type taskDetails struct {
	ID string `json:"id"`
}

// CreateTask inserts one task and returns its id. The CRM answers per
// record; anything but code SUCCESS is *errors.ErrTaskRejected.
func (c *Client) CreateTask(ctx context.Context, s Session, task Task) (string, error) {
	payload, err := json.Marshal(map[string][]Task{"data": {task}})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, s, "create_task", http.MethodPost, "/Tasks", nil, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var parsed struct {
		Data []taskResult `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &parsed); err != nil || len(parsed.Data) == 0 {
		if resp.status < 200 || resp.status > 299 {
			return "", upstreamError("create_task", resp)
		}
		return "", &errors.ErrTaskRejected{Code: "EMPTY_RESPONSE", Message: string(resp.body)}
	}

	result := parsed.Data[0]
	if result.Code != "SUCCESS" {
		return "", &errors.ErrTaskRejected{Code: result.Code, Message: result.Message}
	}

	var details taskDetails
	_ = json.Unmarshal(result.Details, &details)
	return details.ID, nil
}
