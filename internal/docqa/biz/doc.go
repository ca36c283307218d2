// Package biz 提供文档问答服务的业务逻辑层。
//
// 组件划分：
//   - Embedder: 调用 Embedding 供应商，负责限流、批量与维度校验
//   - Ingester: 单个文档的抽取、切分、向量化与持久化状态机
//   - IngestQueue: 异步派发 ingestion 任务的队列与 worker 池
//   - Retriever: 按 owner/状态过滤的近邻检索
//   - Synthesizer: 构建带引用的提示词并生成答案
//   - Reaper: 回收中断在 processing 状态的文档
//   - Service: 组合以上组件，对外提供上传、查询与管理接口
package biz
