package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// droppedKey — ключ снимка с подробными инспекциями, который не хранится.
const droppedKey = "us_inspections"

// Префиксы плоских ключей реестра и соответствующие им префиксы колонок.
var keyAliases = []struct {
	from, to string
}{
	{"united_states_inspections_", "usa_"},
	{"united_states_crashes_", "usa_crashes_"},
	{"canada_inspections_", "canada_"},
}

// Flatten превращает вложенный снимок в плоскую карту: ключи вложенных
// объектов склеиваются через "_", списки скаляров объединяются через ", ".
// Ключ us_inspections верхнего уровня отбрасывается.
func Flatten(nested map[string]any) map[string]any {
	flat := make(map[string]any, len(nested))
	for k, v := range nested {
		if k == droppedKey {
			continue
		}
		flattenInto(flat, k, v)
	}
	return flat
}

func flattenInto(flat map[string]any, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			flat[prefix] = nil
			return
		}
		for k, inner := range val {
			flattenInto(flat, prefix+"_"+k, inner)
		}
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			parts = append(parts, scalarString(item))
		}
		flat[prefix] = strings.Join(parts, ", ")
	default:
		flat[prefix] = val
	}
}

// normalizeKey переводит плоский ключ реестра в имя колонки carrier_data.
func normalizeKey(key string) string {
	for _, a := range keyAliases {
		if strings.HasPrefix(key, a.from) {
			return a.to + strings.TrimPrefix(key, a.from)
		}
	}
	return key
}

// snapshotUSDOT возвращает номер, указанный в самом снимке, или "".
func snapshotUSDOT(flat map[string]any) string {
	for k, v := range flat {
		if normalizeKey(k) == "usdot" && v != nil {
			return scalarString(v)
		}
	}
	return ""
}

// ToCarrier строит запись перевозчика из плоской карты. Ключ записи всегда
// запрошенный usdot: номер из снимка может отличаться записью (ведущие нули).
// Неизвестные ключи игнорируются; значение несовместимого типа — ошибка
// для всей записи.
func ToCarrier(usdot string, flat map[string]any) (*model.Carrier, error) {
	byColumn := make(map[string]any, len(flat))
	for k, v := range flat {
		byColumn[normalizeKey(k)] = v
	}

	c := &model.Carrier{USDOT: usdot}

	for _, f := range c.Fields() {
		raw, ok := byColumn[f.Column]
		if !ok || raw == nil {
			continue
		}
		switch ptr := f.Ptr.(type) {
		case **string:
			s := scalarString(raw)
			*ptr = &s
		case **int64:
			n, err := toInt64(raw)
			if err != nil {
				return nil, fmt.Errorf("поле %s: %w", f.Column, err)
			}
			*ptr = &n
		}
	}
	return c, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// toInt64 принимает целые числа JSON и строки вида "1,234".
func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("ожидалось целое число, получено %q", val.String())
		}
		return toInt64(f)
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("ожидалось целое число, получено %v", val)
		}
		return int64(val), nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(val), ",", ""), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ожидалось целое число, получено %q", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("ожидалось целое число, получен %T", v)
	}
}
