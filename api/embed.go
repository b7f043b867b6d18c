// Package api 内嵌 OpenAPI 描述与 API 文档页面
//
// generated/go 下的类型由 openapi/openapi.yaml 生成，
// 修改描述文件后需要重新运行 go generate ./api。
package api

import "embed"

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen@v2.4.1 --config oapi-codegen.yaml openapi/openapi.yaml

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

//go:embed docs/index.html
var DocsFS embed.FS
