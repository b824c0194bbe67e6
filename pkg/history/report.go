package history

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// reportHeaders 汇总表列头
var reportHeaders = []string{
	"轮次", "候选", "得分", "特殊", "成功", "执行错误", "语法拒绝", "超时", "回退", "谱半径",
}

// ExportReport 把一次运行的候选记录导出成 xlsx 汇总表
func ExportReport(path, runID string, gens []Generation) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "演化汇总"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("清理缺省工作表失败: %w", err)
	}

	for col, h := range reportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, g := range gens {
		values := []interface{}{
			g.Round, g.Candidate, g.Score, g.Special,
			g.OKCount, g.ErrCount, g.SynCount, g.TOCount, g.FBCount,
			g.Radius,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存汇总表失败（运行 %s）: %w", runID, err)
	}
	return nil
}
