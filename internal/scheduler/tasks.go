package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOrderSync = "orders.sync"

const TaskOrderFinalize = "orders.finalize"

type OrderSyncPayload struct {
	OrderKey string                 `json:"orderKey"`
	Patch    map[string]interface{} `json:"patch"`
}

type OrderFinalizePayload struct {
	OrderKey string `json:"orderKey"`
}

func NewOrderSyncTask(payload OrderSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderSync, data), nil
}

func ParseOrderSyncPayload(task *asynq.Task) (OrderSyncPayload, error) {
	var payload OrderSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OrderSyncPayload{}, err
	}
	return payload, nil
}

func NewOrderFinalizeTask(payload OrderFinalizePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderFinalize, data), nil
}

func ParseOrderFinalizePayload(task *asynq.Task) (OrderFinalizePayload, error) {
	var payload OrderFinalizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OrderFinalizePayload{}, err
	}
	return payload, nil
}
