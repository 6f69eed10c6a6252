package common

import (
	"path"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/xid"
)

func IsEmpty(s string) bool {
	s1 := strings.TrimSpace(s)
	return len(s1) == 0
}

func getLastPath(s string, limit int) string {

	index := 0
	dir := s
	var arr []string

	for !IsEmpty(dir) {
		if index >= limit {
			break
		}
		index++
		arr = append([]string{path.Base(dir)}, arr...)
		dir = path.Dir(dir)
	}
	return path.Join(arr...)
}

func GetCallerInfo(offset int) (string, string, int) {

	pc := make([]uintptr, 15)
	n := runtime.Callers(offset, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()

	function := getLastPath(frame.Function, 1)
	file := getLastPath(frame.File, 3)
	line := frame.Line

	return function, file, line
}

func HasElem(s interface{}, elem interface{}) bool {

	arrV := reflect.ValueOf(s)

	if arrV.Kind() == reflect.Slice {
		for i := 0; i < arrV.Len(); i++ {

			// XXX - panics if slice element points to an unexported struct field
			// see https://golang.org/pkg/reflect/#Value.Interface
			if arrV.Index(i).Interface() == elem {
				return true
			}
		}
	}
	return false
}

func GetGuid() string {
	guid := xid.New()
	return guid.String()
}

// GetKeyValues parses "k1=v1,k2=v2". Pairs without a key are skipped, a pair
// without "=" gets an empty value.
func GetKeyValues(s string) map[string]string {

	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {

		kv := strings.SplitN(pair, "=", 2)
		key := strings.TrimSpace(kv[0])
		if IsEmpty(key) {
			continue
		}
		value := ""
		if len(kv) > 1 {
			value = strings.TrimSpace(kv[1])
		}
		m[key] = value
	}
	return m
}

// MapToArray renders a map as sorted "key<sep>value" items.
func MapToArray(m map[string]string, sep string) []string {

	var arr []string
	for k, v := range m {
		arr = append(arr, k+sep+v)
	}
	sort.Strings(arr)
	return arr
}
