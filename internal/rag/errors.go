package rag

import (
	"errors"
	"fmt"
)

// ErrEmbeddingUnavailable 向量模型被禁用或加载失败。
// 依赖方据此进入降级模式，不向上传播为硬错误。
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// ErrEmptyQuery 用户问题为空白，面向用户的 400 级错误。
var ErrEmptyQuery = errors.New("no message provided")

// IndexBuildError 全量构建索引时的嵌入或持久化失败。
type IndexBuildError struct {
	Err error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("构建向量索引失败: %v", e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// IndexAppendError 增量追加索引时的嵌入或持久化失败。
// 追加失败时磁盘上保留追加前的完整状态。
type IndexAppendError struct {
	Err error
}

func (e *IndexAppendError) Error() string {
	return fmt.Sprintf("追加向量索引失败: %v", e.Err)
}

func (e *IndexAppendError) Unwrap() error { return e.Err }

// DimensionMismatchError 向量维度与已有索引不一致。
// 通常意味着换了嵌入模型但没有重建索引。
type DimensionMismatchError struct {
	Expected int
	Actual   int
	Model    string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("向量维度不匹配: 索引 %d 维(模型 %s), 实际 %d 维；请重建索引",
		e.Expected, e.Model, e.Actual)
}

// AnswerError 生成回答失败。Sources 保留已检索到的来源，
// 调用方即使拿到 500 也能知道检索命中了哪些文件。
type AnswerError struct {
	Sources []string
	Err     error
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("生成回答失败: %v", e.Err)
}

func (e *AnswerError) Unwrap() error { return e.Err }
