// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供请求改写器链，用于在适配器把规范请求序列化为上游
wire 格式之前进行参数清理与转换。

# 核心接口

  - RequestRewriter：请求改写器接口，包含 Rewrite 与 Name 方法。
  - RewriterChain：改写器链，按顺序执行多个 RequestRewriter，任一失败
    即中断并返回错误。

# 内置改写器

  - EmptyToolsCleaner：当 Tools 为空时清除 ToolChoice 字段，避免部分
    上游 API 在空 tools 数组下设置 tool_choice 时返回 400。
*/
package middleware
