package http

import (
	"golang.org/x/text/language"

	"rvhrisk/risk"
)

// 支持的文案语言，英文为兜底
var supportedLanguages = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// 请求未携带Accept-Language时使用的文案，启动时可配置
var defaultCatalog = &english

// SetDefaultLanguage 设置默认文案语言，无法识别的标签保持英文
func SetDefaultLanguage(lang string) {
	tag, err := language.Parse(lang)
	if err != nil {
		defaultCatalog = &english
		return
	}
	if _, idx, _ := languageMatcher.Match(tag); idx == 1 {
		defaultCatalog = &chinese
	} else {
		defaultCatalog = &english
	}
}

// catalog 本地化文案
type catalog struct {
	Tag                      string
	ModelNotLoaded           string
	PredictionFailed         string
	CheckColumns             string
	InvalidInput             string
	InvalidForm              string
	InternalError            string
	FactorNeovascularisation string
	FactorHbA1c              string
	Reassurance              string
}

var english = catalog{
	Tag:                      "en",
	ModelNotLoaded:           "Model not loaded. Please check if the model file exists.",
	PredictionFailed:         "An error occurred during prediction: ",
	CheckColumns:             "Please check that the input feature columns exactly match the model.",
	InvalidInput:             "Some inputs are invalid. Please correct them and try again.",
	InvalidForm:              "The submitted form could not be read.",
	InternalError:            "Internal error: feature column names do not match.",
	FactorNeovascularisation: "Active Neovascularisation is a significant risk factor.",
	FactorHbA1c:              "Elevated HbA1c suggests poor glycemic control.",
	Reassurance:              "Patient profile suggests lower likelihood of recurrence.",
}

var chinese = catalog{
	Tag:                      "zh-Hans",
	ModelNotLoaded:           "模型未加载，请确认模型文件在当前目录下。",
	PredictionFailed:         "预测过程中发生错误: ",
	CheckColumns:             "请检查输入的特征列名是否与模型完全匹配。",
	InvalidInput:             "部分输入无效，请修正后重试。",
	InvalidForm:              "无法读取提交的表单。",
	InternalError:            "代码内部错误：列名拼写不匹配。",
	FactorNeovascularisation: "活动性新生血管是显著的危险因素。",
	FactorHbA1c:              "HbA1c偏高提示血糖控制不佳。",
	Reassurance:              "患者特征提示复发可能性较低。",
}

// catalogFor 根据Accept-Language协商文案语言
func catalogFor(acceptLanguage string) *catalog {
	if acceptLanguage == "" {
		return defaultCatalog
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return defaultCatalog
	}
	_, idx, _ := languageMatcher.Match(tags...)
	if idx == 1 {
		return &chinese
	}
	return &english
}

// factorMessage 按标注规则代码取本地化文案
func (c *catalog) factorMessage(code risk.FactorCode, fallback string) string {
	switch code {
	case risk.FactorActiveNeovascularisation:
		return c.FactorNeovascularisation
	case risk.FactorElevatedHbA1c:
		return c.FactorHbA1c
	}
	return fallback
}
