package record

import "fmt"

var terminals = map[byte]string{
	0x03: "のりこし精算機",
	0x05: "バス・路面等",
	0x07: "券売機",
	0x08: "券売機",
	0x09: "入金機",
	0x12: "券売機",
	0x14: "窓口端末",
	0x15: "定期券発券機",
	0x16: "改札機",
	0x17: "簡易改札機",
	0x18: "窓口端末",
	0x19: "窓口端末",
	0x1a: "窓口端末",
	0x1b: "パソリ等",
	0x1c: "のりつぎ精算機",
	0x1d: "のりかえ改札機",
	0x1f: "簡易入金機",
	0x20: "窓口端末",
	0x21: "精算機",
	0x23: "新幹線改札機",
	0x24: "車内補充券発行機",
	0x46: "VIEW ALTTE",
	0x48: "ポイント交換機",
	0xc7: "物販・タクシー",
	0xc8: "自販機",
}

// processes is keyed by the low 7 bits of the process code.
var processes = map[byte]string{
	0x01: "改札出場",
	0x02: "チャージ",
	0x03: "乗車券購入",
	0x04: "精算",
	0x05: "入場精算",
	0x06: "窓口出場",
	0x07: "新規発行",
	0x08: "窓口控除",
	0x0c: "バス・路面等",
	0x0d: "バス・路面等",
	0x0f: "バス・路面等",
	0x10: "再発行処理",
	0x11: "再発行処理",
	0x13: "新幹線改札出場",
	0x14: "入場時オートチャージ",
	0x15: "出場時オートチャージ",
	0x19: "バス精算",
	0x1a: "バス精算",
	0x1b: "バス精算",
	0x1f: "バスチャージ",
	0x23: "バス・路面等企画券購入",
	0x33: "残高返金",
	0x46: "物販",
	0x48: "ポイントチャージ",
	0x49: "レジ入金",
	0x4a: "物販取消",
	0x4b: "入場物販",
}

const processMask = 0x7f

// Processes whose overlapping bytes carry a time of day.
var timestamped = codeSet(0x46, 0x49, 0x4a, 0x4b)

var entryStation = codeSet(0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x10, 0x11, 0x13, 0x14, 0x15, 0x33)

var exitStation = codeSet(0x01, 0x03, 0x04, 0x05, 0x06, 0x13)

func codeSet(codes ...byte) map[byte]bool {
	s := make(map[byte]bool, len(codes))
	for _, c := range codes {
		s[c] = true
	}
	return s
}

// TerminalName returns the display name of a terminal code, or its hex form.
func TerminalName(code byte) string {
	if name, ok := terminals[code]; ok {
		return name
	}
	return hexCode(code)
}

// ProcessName looks up code&0x7f. The hex fallback renders the full code.
func ProcessName(code byte) string {
	if name, ok := processes[code&processMask]; ok {
		return name
	}
	return hexCode(code)
}

func hexCode(code byte) string {
	return fmt.Sprintf("0x%02x", code)
}
