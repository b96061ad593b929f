// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package challenge

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"dctf/server/submission"
)

// HandleImportChallenges 批量导入题目
func HandleImportChallenges(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_FILE", "message": "请上传Excel文件"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "FILE_OPEN_ERROR"})
		return
	}
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EXCEL_PARSE_ERROR", "message": "无法解析Excel文件"})
		return
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil || len(rows) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "EMPTY_FILE", "message": "Excel文件为空或格式错误"})
		return
	}

	// 读取所有分类（用于名称转ID）
	categoryMap := make(map[string]int64)
	catRows, _ := db.Query("SELECT id, name FROM categories")
	if catRows != nil {
		defer catRows.Close()
		for catRows.Next() {
			var id int64
			var name string
			catRows.Scan(&id, &name)
			categoryMap[strings.ToUpper(name)] = id
		}
	}

	// 解析表头（第一行）
	headers := rows[0]
	headerIndex := make(map[string]int)
	for i, h := range headers {
		headerIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}

	type ImportResult struct {
		Row     int    `json:"row"`
		Name    string `json:"name"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	var results []ImportResult
	successCount := 0
	failCount := 0

	for rowIndex := 1; rowIndex < len(rows); rowIndex++ {
		row := rows[rowIndex]
		result := ImportResult{Row: rowIndex + 1}

		// 获取字段值（支持模糊匹配表头，因为表头可能带括号说明）
		getValue := func(fields ...string) string {
			for _, field := range fields {
				fieldLower := strings.ToLower(field)
				if idx, ok := headerIndex[fieldLower]; ok && idx < len(row) {
					return strings.TrimSpace(row[idx])
				}
				for header, idx := range headerIndex {
					if strings.Contains(header, fieldLower) && idx < len(row) {
						return strings.TrimSpace(row[idx])
					}
				}
			}
			return ""
		}

		name := getValue("题目名称", "题目标题", "name")
		if name == "" {
			result.Message = "题目名称不能为空"
			results = append(results, result)
			failCount++
			continue
		}
		result.Name = name

		chType := getValue("题目类型", "type")
		if chType == "" {
			chType = submission.ChallengeTypeStandard
		}
		typeMap := map[string]string{
			"固定分值":                           submission.ChallengeTypeStandard,
			"动态分值":                           submission.ChallengeTypeDynamic,
			"脚本判题":                           submission.ChallengeTypeScripted,
			submission.ChallengeTypeStandard: submission.ChallengeTypeStandard,
			submission.ChallengeTypeDynamic:  submission.ChallengeTypeDynamic,
			submission.ChallengeTypeScripted: submission.ChallengeTypeScripted,
		}
		if mapped, ok := typeMap[chType]; ok {
			chType = mapped
		} else {
			result.Message = "无效的题目类型: " + chType
			results = append(results, result)
			failCount++
			continue
		}

		category := strings.ToUpper(getValue("题目分类", "分类", "category"))
		categoryID, ok := categoryMap[category]
		if !ok || category == "" {
			// 分类不存在或留空，自动归为 MISC
			if miscID, ok := categoryMap["MISC"]; ok {
				categoryID = miscID
			} else if otherID, ok := categoryMap["OTHER"]; ok {
				categoryID = otherID
			} else {
				result.Message = "无效的分类且找不到MISC/OTHER: " + category
				results = append(results, result)
				failCount++
				continue
			}
		}

		difficulty := parseIntDefault(getValue("题目难度", "难度", "difficulty"), 5)
		if difficulty < 1 || difficulty > 10 {
			difficulty = 5
		}

		description := getValue("题目描述", "描述", "description")

		flag := getValue("flag内容", "flag")
		flagType := strings.ToLower(getValue("flag类型", "flag_type"))
		flagTypeMap := map[string]string{
			"静态":                       submission.FlagTypeStatic,
			"正则":                       submission.FlagTypeRegex,
			submission.FlagTypeStatic: submission.FlagTypeStatic,
			submission.FlagTypeRegex:  submission.FlagTypeRegex,
			"":                         submission.FlagTypeStatic,
		}
		mappedFlagType, ok := flagTypeMap[flagType]
		if !ok {
			result.Message = "无效的Flag类型: " + flagType
			results = append(results, result)
			failCount++
			continue
		}
		caseInsensitive := getValue("忽略大小写") == "1"

		value := parseIntDefault(getValue("分值", "value"), 100)
		minValue := parseIntDefault(getValue("最低分值", "min_value"), value)
		decay := parseFloatDefault(getValue("衰减系数", "decay"), 0.9)
		decayThreshold := parseIntDefault(getValue("衰减阈值", "decay_threshold"), 0)
		maxAttempts := parseIntDefault(getValue("最大尝试次数", "尝试次数", "max_attempts"), 0)

		if chType != submission.ChallengeTypeDynamic {
			minValue = value
		}

		var challengeID int64
		err := db.QueryRow(`
			INSERT INTO challenges (event_id, category_id, name, description, type, state, flag_logic,
				value, initial_value, min_value, decay, decay_threshold, max_attempts, difficulty)
			VALUES ($1, $2, $3, $4, $5, 'hidden', 'any', $6, $6, $7, $8, $9, $10, $11) RETURNING id`,
			eventID, categoryID, name, NullIfEmpty(description), chType,
			value, minValue, decay, decayThreshold, maxAttempts, difficulty).Scan(&challengeID)
		if err != nil {
			result.Message = "数据库错误: " + err.Error()
			results = append(results, result)
			failCount++
			continue
		}

		if flag != "" {
			db.Exec(`INSERT INTO flags (challenge_id, flag, type, is_case_insensitive) VALUES ($1, $2, $3, $4)`,
				challengeID, flag, mappedFlagType, caseInsensitive)
		}

		result.Success = true
		result.Message = "导入成功"
		results = append(results, result)
		successCount++
	}

	c.JSON(http.StatusOK, gin.H{
		"success": successCount,
		"fail":    failCount,
		"total":   successCount + failCount,
		"results": results,
	})
}

// HandleDownloadChallengeTemplate 下载题目导入模板
func HandleDownloadChallengeTemplate(c *gin.Context, db *sql.DB) {
	f := excelize.NewFile()
	sheetName := "Sheet1"

	headers := []string{
		"题目名称", "题目类型", "题目分类（输入的不存在或留空则导入时自动归为MISC）", "题目难度（1~10星）", "题目描述",
		"FLAG内容", "FLAG类型（静态/正则）", "忽略大小写（1是2不是）",
		"分值", "最低分值（动态分值题生效）", "衰减系数（0~1之间）", "衰减阈值", "最大尝试次数（0为不限制）",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FF6B00"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	f.SetCellStyle(sheetName, "A1", "M1", headerStyle)

	f.SetColWidth(sheetName, "A", "A", 20) // 题目名称
	f.SetColWidth(sheetName, "B", "B", 12) // 题目类型
	f.SetColWidth(sheetName, "C", "C", 40) // 题目分类
	f.SetColWidth(sheetName, "D", "D", 18) // 题目难度
	f.SetColWidth(sheetName, "E", "E", 30) // 题目描述
	f.SetColWidth(sheetName, "F", "F", 25) // FLAG内容
	f.SetColWidth(sheetName, "G", "G", 20) // FLAG类型
	f.SetColWidth(sheetName, "H", "H", 20) // 忽略大小写
	f.SetColWidth(sheetName, "I", "I", 10) // 分值
	f.SetColWidth(sheetName, "J", "J", 24) // 最低分值
	f.SetColWidth(sheetName, "K", "K", 20) // 衰减系数
	f.SetColWidth(sheetName, "L", "L", 12) // 衰减阈值
	f.SetColWidth(sheetName, "M", "M", 24) // 最大尝试次数

	// 题目类型列添加下拉菜单 (B列，第2行到第1000行)
	dvType := excelize.NewDataValidation(true)
	dvType.Sqref = "B2:B1000"
	dvType.SetDropList([]string{"固定分值", "动态分值", "脚本判题"})
	f.AddDataValidation(sheetName, dvType)

	dvFlagType := excelize.NewDataValidation(true)
	dvFlagType.Sqref = "G2:G1000"
	dvFlagType.SetDropList([]string{"静态", "正则"})
	f.AddDataValidation(sheetName, dvFlagType)

	examples := [][]interface{}{
		{"示例题目1-固定分值", "固定分值", "WEB", 3, "这是一道固定分值题目", "flag{example_1}", "静态", 2, 100, 100, "", "", 0},
		{"示例题目2-动态分值", "动态分值", "PWN", 7, "这是一道动态分值题目", "flag{example_2}", "静态", 2, 1000, 100, 0.9, 3, 0},
		{"示例题目3-正则Flag", "固定分值", "MISC", 5, "正则Flag题目示例", `flag\{[0-9a-f]{32}\}`, "正则", 1, 200, 200, "", "", 5},
	}

	for i, row := range examples {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheetName, cell, val)
		}
	}

	// 创建说明工作表
	f.NewSheet("填写说明")
	instructions := [][]string{
		{"字段名", "说明", "示例值"},
		{"题目名称", "必填，题目名称", "示例题目1"},
		{"题目类型", "可选：固定分值/动态分值/脚本判题", "动态分值"},
		{"题目分类", "留空或不存在的分类自动归为MISC", "WEB"},
		{"题目难度", "1~10星，默认5", "5"},
		{"题目描述", "题目的详细描述", "这是题目描述..."},
		{"FLAG内容", "静态Flag原文或正则表达式", "flag{flag_here}"},
		{"FLAG类型", "静态=完整匹配，正则=从开头匹配", "静态"},
		{"忽略大小写", "1=是，2=否", "2"},
		{"分值", "固定分值题的分值，动态分值题的初始分值", "1000"},
		{"最低分值", "动态分值题的衰减下限", "100"},
		{"衰减系数", "0~1之间，留空默认0.9", "0.9"},
		{"衰减阈值", "解题数超过该值后开始衰减", "3"},
		{"最大尝试次数", "错误提交次数上限，0表示不限制", "0"},
	}

	for i, row := range instructions {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			f.SetCellValue("填写说明", cell, val)
		}
	}

	f.SetColWidth("填写说明", "A", "A", 15)
	f.SetColWidth("填写说明", "B", "B", 50)
	f.SetColWidth("填写说明", "C", "C", 30)
	headerStyle2, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"EEEEEE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	f.SetCellStyle("填写说明", "A1", "C1", headerStyle2)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=challenge_import_template.xlsx")

	if err := f.Write(c.Writer); err != nil {
		log.Printf("write excel error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WRITE_ERROR"})
		return
	}
}

// HandleExportSolves 导出赛事解题记录
func HandleExportSolves(c *gin.Context, db *sql.DB) {
	eventID := c.Param("id")

	rows, err := db.Query(`
		SELECT ch.name, COALESCE(t.name, COALESCE(u.display_name, u.username)), s.points, s.solve_order, s.solved_at
		FROM solves s
		JOIN challenges ch ON s.challenge_id = ch.id
		LEFT JOIN teams t ON s.team_id = t.id
		LEFT JOIN users u ON s.user_id = u.id
		WHERE s.event_id = $1
		ORDER BY s.solved_at`, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	f := excelize.NewFile()
	sheetName := "Sheet1"
	headers := []string{"题目", "计分主体", "得分", "解题顺位", "解题时间"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"EEEEEE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	f.SetCellStyle(sheetName, "A1", "E1", headerStyle)
	f.SetColWidth(sheetName, "A", "B", 25)
	f.SetColWidth(sheetName, "C", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 22)

	rowIndex := 2
	for rows.Next() {
		var challengeName, solverName string
		var points, solveOrder int
		var solvedAt sql.NullTime
		if err := rows.Scan(&challengeName, &solverName, &points, &solveOrder, &solvedAt); err != nil {
			continue
		}
		values := []interface{}{challengeName, solverName, points, solveOrder, ""}
		if solvedAt.Valid {
			values[4] = solvedAt.Time.Format("2006-01-02 15:04:05")
		}
		for j, val := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, rowIndex)
			f.SetCellValue(sheetName, cell, val)
		}
		rowIndex++
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=event_solves.xlsx")

	if err := f.Write(c.Writer); err != nil {
		log.Printf("write excel error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WRITE_ERROR"})
		return
	}
}

// parseIntDefault 解析整数，失败返回默认值
func parseIntDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// parseFloatDefault 解析浮点数，失败返回默认值
func parseFloatDefault(s string, defaultVal float64) float64 {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal
	}
	return val
}
