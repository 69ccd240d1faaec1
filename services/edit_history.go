// services/edit_history.go
package services

import (
	"strings"
	"time"

	"github.com/GrainArc/RoadCollab/methods"
	"github.com/paulmach/orb/geojson"
)

// maxHistorySize 撤销栈上限，超出后淘汰最旧动作
const maxHistorySize = 100

const (
	ActionInsertNode = "insert-node"
	ActionUpdateNode = "update-node"
	ActionDeleteNode = "delete-node"
)

// Action 一次节点编辑动作，前后状态均为独立深拷贝
type Action struct {
	Type      string
	RoadID    string
	Before    *geojson.Feature
	After     *geojson.Feature
	Timestamp time.Time
}

// EditHistory 会话级撤销重做栈，跨要素全局共享一条历史
type EditHistory struct {
	undoStack []*Action
	redoStack []*Action
}

func NewEditHistory() *EditHistory {
	return &EditHistory{}
}

// Record 入栈新动作并清空重做栈
func (h *EditHistory) Record(actionType, roadID string, before, after *geojson.Feature) {
	action := &Action{
		Type:      actionType,
		RoadID:    roadID,
		Before:    methods.CloneFeature(before),
		After:     methods.CloneFeature(after),
		Timestamp: time.Now(),
	}
	h.undoStack = append(h.undoStack, action)
	h.redoStack = h.redoStack[:0]

	if len(h.undoStack) > maxHistorySize {
		h.undoStack = h.undoStack[1:]
	}
}

// Undo 弹出最近动作，返回应恢复的前状态
// 重做动作以撤销时刻的当前状态为准，避免其他要素的后续编辑污染重做
func (h *EditHistory) Undo(current func(roadID string) *geojson.Feature) *geojson.Feature {
	if len(h.undoStack) == 0 {
		return nil
	}
	action := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]

	if cur := current(action.RoadID); cur != nil {
		h.redoStack = append(h.redoStack, &Action{
			Type:      "redo-" + action.Type,
			RoadID:    action.RoadID,
			Before:    action.Before,
			After:     methods.CloneFeature(cur),
			Timestamp: time.Now(),
		})
	}

	return methods.CloneFeature(action.Before)
}

// Redo 撤销的镜像操作
func (h *EditHistory) Redo(current func(roadID string) *geojson.Feature) *geojson.Feature {
	if len(h.redoStack) == 0 {
		return nil
	}
	action := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]

	if cur := current(action.RoadID); cur != nil {
		h.undoStack = append(h.undoStack, &Action{
			Type:      strings.TrimPrefix(action.Type, "redo-"),
			RoadID:    action.RoadID,
			Before:    methods.CloneFeature(cur),
			After:     action.After,
			Timestamp: time.Now(),
		})
	}

	return methods.CloneFeature(action.After)
}

// Clear 清空全部历史
func (h *EditHistory) Clear() {
	h.undoStack = h.undoStack[:0]
	h.redoStack = h.redoStack[:0]
}

func (h *EditHistory) UndoCount() int {
	return len(h.undoStack)
}

func (h *EditHistory) RedoCount() int {
	return len(h.redoStack)
}
