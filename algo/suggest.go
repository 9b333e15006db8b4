package algo

import (
	"strings"

	"location-service/model"
)

// MergeSuggestions 合并本地匹配和地理编码结果
// 本地结果全部保留且排在前面; 外部结果只有在名称 (不区分大小写) 与所有本地结果都不同时才追加.
// 外部结果之间不去重 (不同地点可能同名). 输入切片不会被修改.
func MergeSuggestions(local, external []model.NamedPoint) []model.NamedPoint {
	out := make([]model.NamedPoint, 0, len(local)+len(external))
	localNames := make(map[string]struct{}, len(local))
	out = append(out, local...)
	for _, p := range local {
		localNames[nameKey(p.Name)] = struct{}{}
	}
	for _, p := range external {
		if _, ok := localNames[nameKey(p.Name)]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
