package rag

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// 存储目录下的两个关联文件。
// documents.json 中第 N 条记录对应 index.bin 中第 N 个向量，
// 位置对应关系是整个子系统的核心不变量：任何写入向量的操作
// 必须在同一次调用中以同样顺序写入元数据，绝不允许单独写其中一个。
const (
	indexFileName = "index.bin"
	docsFileName  = "documents.json"
)

// index.bin 文件头
const (
	indexMagic         = "RAGF"
	indexFormatVersion = uint32(1)
)

// FlatStore 文件持久化的精确 L2 向量索引
// 一次写入、全量读取；正常运行期间只追加，重建是唯一的删改途径。
// 所有变更操作由单写者互斥锁串行化；两个文件均写临时文件后
// rename 原子落盘，读方不会观察到半写状态。
type FlatStore struct {
	dir    string
	handle *ProviderHandle
	logger *zap.Logger

	mu sync.Mutex // 串行化 Build/Append
}

// NewFlatStore 创建向量索引存储
func NewFlatStore(dir string, handle *ProviderHandle, logger *zap.Logger) (*FlatStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("向量存储目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建向量存储目录失败: %w", err)
	}
	return &FlatStore{dir: dir, handle: handle, logger: logger}, nil
}

func (s *FlatStore) indexPath() string { return filepath.Join(s.dir, indexFileName) }
func (s *FlatStore) docsPath() string  { return filepath.Join(s.dir, docsFileName) }

// flatIndex index.bin 的内存形式
type flatIndex struct {
	Dim     int
	Model   string
	Vectors [][]float32
}

// Build 全量(重)建索引
// chunks 为空时删除两个持久化文件（清空存储）；否则批量嵌入、
// 构建全新索引并原子替换旧内容。嵌入不可用、嵌入失败或写盘失败
// 返回 *IndexBuildError，磁盘保留调用前状态。
func (s *FlatStore) Build(ctx context.Context, chunks []string, metas []ChunkMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked(ctx, chunks, metas)
}

func (s *FlatStore) buildLocked(ctx context.Context, chunks []string, metas []ChunkMeta) error {
	if len(chunks) == 0 {
		if err := s.removeFiles(); err != nil {
			return &IndexBuildError{Err: err}
		}
		s.logger.Info("向量索引已清空(无文档)")
		return nil
	}
	if len(chunks) != len(metas) {
		return &IndexBuildError{Err: fmt.Errorf("分块与元数据数量不一致: %d vs %d", len(chunks), len(metas))}
	}

	provider, err := s.handle.Provider()
	if err != nil {
		return &IndexBuildError{Err: err}
	}

	vectors, err := provider.EmbedBatch(ctx, chunks)
	if err != nil {
		return &IndexBuildError{Err: err}
	}
	if len(vectors) != len(chunks) {
		return &IndexBuildError{Err: fmt.Errorf("嵌入返回向量数量不匹配: 期望%d, 实际%d", len(chunks), len(vectors))}
	}

	idx := &flatIndex{
		Dim:     len(vectors[0]),
		Model:   provider.GetModel(),
		Vectors: vectors,
	}
	records := make([]IndexedRecord, len(chunks))
	for i, text := range chunks {
		records[i] = IndexedRecord{Text: text, Meta: metas[i]}
	}

	if err := s.persist(idx, records); err != nil {
		return &IndexBuildError{Err: err}
	}

	s.logger.Info("向量索引构建完成",
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", idx.Dim),
	)
	return nil
}

// Append 增量追加
// 无已有索引时等价于 Build。嵌入成功但持久化失败不会造成向量数与
// 元数据数错位：嵌入+变更+落盘视为一个整体，要么全部成功，
// 要么磁盘保留追加前状态。失败返回 *IndexAppendError。
func (s *FlatStore) Append(ctx context.Context, chunks []string, metas []ChunkMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(metas) {
		return &IndexAppendError{Err: fmt.Errorf("分块与元数据数量不一致: %d vs %d", len(chunks), len(metas))}
	}

	if !fileExists(s.indexPath()) {
		if err := s.buildLocked(ctx, chunks, metas); err != nil {
			var buildErr *IndexBuildError
			if errors.As(err, &buildErr) {
				return &IndexAppendError{Err: buildErr.Err}
			}
			return &IndexAppendError{Err: err}
		}
		return nil
	}

	provider, err := s.handle.Provider()
	if err != nil {
		return &IndexAppendError{Err: err}
	}

	newVectors, err := provider.EmbedBatch(ctx, chunks)
	if err != nil {
		return &IndexAppendError{Err: err}
	}
	if len(newVectors) != len(chunks) {
		return &IndexAppendError{Err: fmt.Errorf("嵌入返回向量数量不匹配: 期望%d, 实际%d", len(chunks), len(newVectors))}
	}

	idx, err := s.readIndex()
	if err != nil {
		return &IndexAppendError{Err: err}
	}
	if err := validateCompat(idx, provider, len(newVectors[0])); err != nil {
		return &IndexAppendError{Err: err}
	}

	records, err := s.readRecords()
	if err != nil {
		return &IndexAppendError{Err: err}
	}
	if len(records) != len(idx.Vectors) {
		return &IndexAppendError{Err: fmt.Errorf("存储已损坏: %d 条元数据对应 %d 个向量", len(records), len(idx.Vectors))}
	}

	idx.Vectors = append(idx.Vectors, newVectors...)
	for i, text := range chunks {
		records = append(records, IndexedRecord{Text: text, Meta: metas[i]})
	}

	if err := s.persist(idx, records); err != nil {
		return &IndexAppendError{Err: err}
	}

	s.logger.Info("向量索引追加完成",
		zap.Int("appended", len(chunks)),
		zap.Int("total", len(records)),
	)
	return nil
}

// Search 相似度检索，近者在前。
// 距离为 L2 平方，距离相同按插入顺序（下标小者在前）。
// 无索引、索引为空或查询为空白时返回空切片；嵌入不可用时降级返回
// 前 min(topK, count) 条记录而不是报错，用相关性换可用性。
func (s *FlatStore) Search(ctx context.Context, query string, topK int) ([]IndexedRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.logger.Warn("检索查询为空")
		return []IndexedRecord{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if !fileExists(s.indexPath()) {
		return []IndexedRecord{}, nil
	}

	records, err := s.readRecords()
	if err != nil {
		s.logger.Error("读取索引元数据失败", zap.Error(err))
		return []IndexedRecord{}, nil
	}
	if len(records) == 0 {
		return []IndexedRecord{}, nil
	}
	if topK > len(records) {
		topK = len(records)
	}

	provider, err := s.handle.Provider()
	if err != nil {
		// 降级路径：模型不可用时返回前 N 条而不是 500
		s.logger.Warn("嵌入模型不可用，返回前 N 条记录作为降级结果",
			zap.Int("topK", topK))
		return records[:topK], nil
	}

	queryVec, err := provider.Embed(ctx, query)
	if err != nil {
		// 与原始行为一致：查询期的嵌入异常吞掉并返回空结果
		s.logger.Error("查询向量化失败", zap.Error(err))
		return []IndexedRecord{}, nil
	}

	idx, err := s.readIndex()
	if err != nil {
		s.logger.Error("读取向量索引失败", zap.Error(err))
		return []IndexedRecord{}, nil
	}
	if len(queryVec) != idx.Dim {
		return nil, &DimensionMismatchError{Expected: idx.Dim, Actual: len(queryVec), Model: idx.Model}
	}

	// 两个文件间崩溃可能留下数量不一致的组合，按较小一侧检索
	if len(idx.Vectors) != len(records) {
		s.logger.Warn("索引与元数据数量不一致",
			zap.Int("vectors", len(idx.Vectors)),
			zap.Int("records", len(records)),
		)
	}
	if topK > len(idx.Vectors) {
		topK = len(idx.Vectors)
	}

	type scored struct {
		pos  int
		dist float32
	}
	scores := make([]scored, len(idx.Vectors))
	for i, vec := range idx.Vectors {
		scores[i] = scored{pos: i, dist: l2Squared(queryVec, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	results := make([]IndexedRecord, 0, topK)
	for _, sc := range scores[:topK] {
		if sc.pos < len(records) {
			results = append(results, records[sc.pos])
		}
	}
	return results, nil
}

// Count 当前持久化的记录数，存储不存在时为 0。
func (s *FlatStore) Count() (int, error) {
	if !fileExists(s.docsPath()) {
		return 0, nil
	}
	records, err := s.readRecords()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear 删除两个持久化文件。
func (s *FlatStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFiles()
}

// --- 内部辅助 ---

// validateCompat 校验新向量与已有索引的模型/维度兼容性。
// 换模型不重建索引会让距离比较失去意义，必须快速失败。
func validateCompat(idx *flatIndex, provider EmbeddingProvider, actualDim int) error {
	if actualDim != idx.Dim {
		return &DimensionMismatchError{Expected: idx.Dim, Actual: actualDim, Model: idx.Model}
	}
	if model := provider.GetModel(); model != idx.Model {
		return fmt.Errorf("嵌入模型不匹配: 索引由 %s 构建, 当前为 %s；请重建索引", idx.Model, model)
	}
	return nil
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *FlatStore) removeFiles() error {
	for _, path := range []string{s.indexPath(), s.docsPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除 %s 失败: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// persist 将索引与元数据先写临时文件再 rename，两次 rename 紧邻执行。
func (s *FlatStore) persist(idx *flatIndex, records []IndexedRecord) error {
	if len(idx.Vectors) != len(records) {
		return fmt.Errorf("拒绝写入: %d 个向量对应 %d 条元数据", len(idx.Vectors), len(records))
	}

	indexTmp, err := s.writeTemp(indexFileName, func(w io.Writer) error {
		return writeIndex(w, idx)
	})
	if err != nil {
		return err
	}

	docsTmp, err := s.writeTemp(docsFileName, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(records)
	})
	if err != nil {
		os.Remove(indexTmp)
		return err
	}

	if err := os.Rename(indexTmp, s.indexPath()); err != nil {
		os.Remove(indexTmp)
		os.Remove(docsTmp)
		return fmt.Errorf("替换索引文件失败: %w", err)
	}
	if err := os.Rename(docsTmp, s.docsPath()); err != nil {
		os.Remove(docsTmp)
		return fmt.Errorf("替换元数据文件失败: %w", err)
	}
	return nil
}

func (s *FlatStore) writeTemp(base string, fill func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(s.dir, base+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("写入 %s 失败: %w", base, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("刷盘 %s 失败: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("关闭 %s 失败: %w", base, err)
	}
	return tmp.Name(), nil
}

// writeIndex 序列化索引
// 布局: magic "RAGF" | version u32 | dim u32 | count u32 |
//       modelLen u16 | model | count*dim 个小端 float32
func writeIndex(w io.Writer, idx *flatIndex) error {
	if _, err := w.Write([]byte(indexMagic)); err != nil {
		return err
	}
	header := []uint32{indexFormatVersion, uint32(idx.Dim), uint32(len(idx.Vectors))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	model := []byte(idx.Model)
	if len(model) > math.MaxUint16 {
		return fmt.Errorf("模型标识过长: %d 字节, 上限 %d", len(model), math.MaxUint16)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(model))); err != nil {
		return err
	}
	if _, err := w.Write(model); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, vec := range idx.Vectors {
		if len(vec) != idx.Dim {
			return fmt.Errorf("向量维度不一致: 期望 %d, 实际 %d", idx.Dim, len(vec))
		}
		for _, f := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FlatStore) readIndex() (*flatIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("读取索引文件失败: %w", err)
	}
	return parseIndex(data)
}

func parseIndex(data []byte) (*flatIndex, error) {
	const fixedHeader = 4 + 4*3 + 2
	if len(data) < fixedHeader {
		return nil, fmt.Errorf("索引文件过短")
	}
	if string(data[:4]) != indexMagic {
		return nil, fmt.Errorf("索引文件魔数无效")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != indexFormatVersion {
		return nil, fmt.Errorf("不支持的索引格式版本: %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))
	modelLen := int(binary.LittleEndian.Uint16(data[16:18]))

	offset := fixedHeader + modelLen
	if len(data) < offset {
		return nil, fmt.Errorf("索引文件头损坏")
	}
	model := string(data[fixedHeader:offset])

	need := offset + count*dim*4
	if len(data) != need {
		return nil, fmt.Errorf("索引文件大小与头部声明不一致: 期望 %d 字节, 实际 %d", need, len(data))
	}

	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			vec[j] = math.Float32frombits(bits)
			offset += 4
		}
		vectors[i] = vec
	}

	return &flatIndex{Dim: dim, Model: model, Vectors: vectors}, nil
}

func (s *FlatStore) readRecords() ([]IndexedRecord, error) {
	data, err := os.ReadFile(s.docsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []IndexedRecord{}, nil
		}
		return nil, fmt.Errorf("读取元数据文件失败: %w", err)
	}
	var records []IndexedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("解析元数据文件失败: %w", err)
	}
	return records, nil
}
