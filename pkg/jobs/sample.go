package jobs

import "github.com/japaniel/yomikomi/pkg/source"

// SampleProvenance tags content imported by SeedSample.
const SampleProvenance = "seed:sample"

var sampleTuples = []source.RawTuple{
	{SourceText: "こんにちは。", TargetText: "Hello.", Category: "greetings", Ref: "sample 1"},
	{SourceText: "私は学生です。", TargetText: "I am a student.", Category: "self", Ref: "sample 2"},
	{SourceText: "今日は良い天気ですね。", TargetText: "It's nice weather today.", Category: "weather", Ref: "sample 3"},
	{SourceText: "日本語を勉強しています。", TargetText: "I am studying Japanese.", Category: "study", Ref: "sample 4"},
	{SourceText: "昨日映画を見ました。", TargetText: "I watched a movie yesterday.", Category: "leisure", Ref: "sample 5"},
	{SourceText: "この本はとても面白いです。", TargetText: "This book is very interesting.", Category: "reading", Ref: "sample 6"},
	{SourceText: "電車で学校に行きます。", TargetText: "I go to school by train.", Category: "transport", Ref: "sample 7"},
	{SourceText: "友達と公園で遊びました。", TargetText: "I played with friends at the park.", Category: "leisure", Ref: "sample 8"},
	{SourceText: "母は料理が上手です。", TargetText: "My mother is good at cooking.", Category: "family", Ref: "sample 9"},
	{SourceText: "明日は雨が降るでしょう。", TargetText: "It will probably rain tomorrow.", Category: "weather", Ref: "sample 10"},
}

func sampleParser() *source.SliceParser {
	return &source.SliceParser{Name: SampleProvenance, Tuples: sampleTuples}
}
