package history

import "github.com/santhosh-tekuri/jsonschema/v5"

// historySchema 锚定历史文件的外部契约：字段名、类型、非负金额。
// 文件格式坏掉要报 CorruptError 给操作者，不能当成"没有历史"悄悄覆盖。
const historySchema = `{
  "type": "object",
  "required": ["lastChecked", "prices"],
  "properties": {
    "lastChecked": {"type": "string", "minLength": 1},
    "prices": {"$ref": "#/$defs/priceList"},
    "previousPrices": {"$ref": "#/$defs/priceList"}
  },
  "$defs": {
    "priceList": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["destination", "price", "priceNumeric", "currency", "timestamp"],
        "properties": {
          "destination": {"type": "string", "minLength": 1},
          "price": {"type": "string"},
          "priceNumeric": {"type": "integer", "minimum": 0},
          "currency": {"type": "string", "minLength": 3, "maxLength": 3},
          "timestamp": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("price-history.json", historySchema)
