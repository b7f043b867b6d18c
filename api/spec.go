package api

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/oasdiff/yaml"
)

// GetSwagger 解析内嵌的 OpenAPI 描述并返回文档对象
//
// YAML 先显式转成 JSON 再交给 kin-openapi 解析，数字与时间字面量
// 的类型不依赖 YAML 的宽松推断。
func GetSwagger() (*openapi3.T, error) {
	data, err := OpenAPIFS.ReadFile("openapi/openapi.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded openapi spec: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("convert openapi spec to json: %w", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(jsonData)
	if err != nil {
		return nil, fmt.Errorf("parse openapi spec: %w", err)
	}
	return doc, nil
}
